// Package gridfs stores blobs in a MongoDB GridFS bucket.
//
// Blob IDs are the ObjectID hex of the GridFS file. The display name is the
// GridFS filename and the content type goes in the file's metadata.
package gridfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/photovault/internal/blobstore"
)

// DefaultBucket matches the collection prefix photos.files / photos.chunks.
const DefaultBucket = "photos"

var _ blobstore.Store = (*Store)(nil)

type Store struct {
	bucket *mongo.GridFSBucket
}

func New(db *mongo.Database, bucketName string) *Store {
	if bucketName == "" {
		bucketName = DefaultBucket
	}
	return &Store{bucket: db.GridFSBucket(options.GridFSBucket().SetName(bucketName))}
}

// fileDocument is one entry of the <bucket>.files collection.
type fileDocument struct {
	ID         bson.ObjectID `bson:"_id"`
	Filename   string        `bson:"filename"`
	Length     int64         `bson:"length"`
	UploadDate time.Time     `bson:"uploadDate"`
	Metadata   struct {
		ContentType string `bson:"contentType"`
	} `bson:"metadata"`
}

func (f fileDocument) info() blobstore.Info {
	return blobstore.Info{
		ID:          f.ID.Hex(),
		Name:        f.Filename,
		ContentType: f.Metadata.ContentType,
		Size:        f.Length,
		UploadedAt:  f.UploadDate,
	}
}

func (s *Store) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	id, err := s.bucket.UploadFromStream(ctx, name, bytes.NewReader(data), opts)
	if err != nil {
		return "", fmt.Errorf("gridfs: uploading %s: %w", name, err)
	}
	return id.Hex(), nil
}

func (s *Store) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	stream, err := s.bucket.OpenDownloadStream(ctx, oid)
	if err != nil {
		return nil, mapErr("opening", id, err)
	}
	return stream, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, oid); err != nil {
		return mapErr("deleting", id, err)
	}
	return nil
}

func (s *Store) Rename(ctx context.Context, id, newName string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.bucket.Rename(ctx, oid, newName); err != nil {
		return mapErr("renaming", id, err)
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, id string) (*blobstore.Info, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var doc fileDocument
	err = s.bucket.GetFilesCollection().FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("gridfs: %s: %w", id, blobstore.ErrNotFound)
		}
		return nil, fmt.Errorf("gridfs: stat %s: %w", id, err)
	}
	info := doc.info()
	return &info, nil
}

// List walks the files collection. Documents are decoded one at a time, so
// a large bucket never sits in memory.
func (s *Store) List(ctx context.Context, fn func(blobstore.Info) error) error {
	cursor, err := s.bucket.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("gridfs: listing files: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc fileDocument
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("gridfs: decoding file: %w", err)
		}
		if err := fn(doc.info()); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// parseID rejects IDs that cannot name a GridFS file. They are reported as
// not found: no blob can have that ID.
func parseID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("gridfs: %q: %w", id, blobstore.ErrNotFound)
	}
	return oid, nil
}

func mapErr(op, id string, err error) error {
	if errors.Is(err, mongo.ErrFileNotFound) {
		return fmt.Errorf("gridfs: %s %s: %w", op, id, blobstore.ErrNotFound)
	}
	return fmt.Errorf("gridfs: %s %s: %w", op, id, err)
}
