package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

var _ repository.PhotoRepository = (*PhotoStore)(nil)

type PhotoStore struct {
	coll *mongo.Collection
}

// photoDocument is the stored shape. The raw EXIF dump is kept as a JSON
// string because its keys are arbitrary tag names.
type photoDocument struct {
	model.Photo  `bson:",inline"`
	FullMetadata string `bson:"fullMetadata,omitempty"`
}

func toDocument(p *model.Photo) photoDocument {
	return photoDocument{Photo: *p, FullMetadata: string(p.FullMetadata)}
}

func (d *photoDocument) toModel() *model.Photo {
	p := d.Photo
	if d.FullMetadata != "" {
		p.FullMetadata = json.RawMessage(d.FullMetadata)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p
}

func (s *PhotoStore) Insert(ctx context.Context, photo *model.Photo) error {
	photo.ID = bson.NewObjectID().Hex()
	photo.UploadedAt = time.Now().UTC()
	photo.Tags = model.NormalizeTags(photo.Tags)

	if _, err := s.coll.InsertOne(ctx, toDocument(photo)); err != nil {
		return fmt.Errorf("mongo: inserting photo: %w", err)
	}
	return nil
}

func (s *PhotoStore) FindByID(ctx context.Context, id string) (*model.Photo, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}}, id)
}

func (s *PhotoStore) FindByBlobID(ctx context.Context, blobID string) (*model.Photo, error) {
	return s.findOne(ctx, bson.D{{Key: "gridFSFileId", Value: blobID}}, blobID)
}

func (s *PhotoStore) findOne(ctx context.Context, filter bson.D, key string) (*model.Photo, error) {
	var doc photoDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("photo", key)
		}
		return nil, fmt.Errorf("mongo: finding photo %s: %w", key, err)
	}
	return doc.toModel(), nil
}

// FindByFilter lists matching photos, newest upload first.
func (s *PhotoStore) FindByFilter(ctx context.Context, filter repository.PhotoFilter) ([]model.Photo, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploadedAt", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.coll.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing photos: %w", err)
	}
	defer cursor.Close(ctx)

	photos := []model.Photo{}
	for cursor.Next(ctx) {
		var doc photoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decoding photo: %w", err)
		}
		photos = append(photos, *doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: listing photos: %w", err)
	}
	return photos, nil
}

// buildFilter translates a PhotoFilter into a query document.
func buildFilter(f repository.PhotoFilter) bson.D {
	q := bson.D{}
	if f.OwnerID != "" {
		q = append(q, bson.E{Key: "userId", Value: f.OwnerID})
	}
	if f.TakenFrom != nil || f.TakenBefore != nil {
		rng := bson.D{}
		if f.TakenFrom != nil {
			rng = append(rng, bson.E{Key: "$gte", Value: *f.TakenFrom})
		}
		if f.TakenBefore != nil {
			rng = append(rng, bson.E{Key: "$lt", Value: *f.TakenBefore})
		}
		q = append(q, bson.E{Key: "dateTaken", Value: rng})
	}
	if len(f.Tags) > 0 {
		q = append(q, bson.E{Key: "tags", Value: bson.D{{Key: "$in", Value: f.Tags}}})
	}
	if f.Favorite != nil {
		q = append(q, bson.E{Key: "isFavorite", Value: *f.Favorite})
	}
	return q
}

// updateDocument builds the $set for the non-nil fields of u.
func updateDocument(u repository.PhotoUpdate) bson.D {
	set := bson.D{}
	if u.Filename != nil {
		set = append(set, bson.E{Key: "filename", Value: *u.Filename})
	}
	if u.Tags != nil {
		set = append(set, bson.E{Key: "tags", Value: model.NormalizeTags(*u.Tags)})
	}
	if u.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *u.Description})
	}
	return bson.D{{Key: "$set", Value: set}}
}

func (s *PhotoStore) UpdateFields(ctx context.Context, id string, update repository.PhotoUpdate) error {
	if update.Empty() {
		return nil
	}
	res, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, updateDocument(update))
	if err != nil {
		return fmt.Errorf("mongo: updating photo %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("photo", id)
	}
	return nil
}

// ToggleFavorite negates the stored flag with an update pipeline, so the
// read and the write are one server-side operation.
func (s *PhotoStore) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	flip := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "isFavorite", Value: bson.D{{Key: "$not", Value: bson.A{"$isFavorite"}}}}}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "isFavorite", Value: 1}})

	var out struct {
		IsFavorite bool `bson:"isFavorite"`
	}
	err := s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, flip, opts).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, apperror.NotFound("photo", id)
		}
		return false, fmt.Errorf("mongo: toggling favorite on %s: %w", id, err)
	}
	return out.IsFavorite, nil
}

func (s *PhotoStore) DeleteByID(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("mongo: deleting photo %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("photo", id)
	}
	return nil
}

func (s *PhotoStore) ReferencesBlob(ctx context.Context, blobID string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "gridFSFileId", Value: blobID}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo: checking blob reference %s: %w", blobID, err)
	}
	return n > 0, nil
}
