// Package minio stores blobs in an S3-compatible bucket.
//
// Object keys are xid strings assigned by Put. S3 has no rename, so the
// display name lives in the "display-name" user metadata and Rename rewrites
// it with a server-side self-copy. The bytes are never re-uploaded.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/xid"

	"github.com/sakif/photovault/internal/blobstore"
)

const displayNameKey = "display-name"

var _ blobstore.Store = (*Store)(nil)

// Config is the connection info for the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type Store struct {
	client *minio.Client
	bucket string
}

// New connects and creates the bucket if it does not exist yet.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: creating client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio: checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("minio: creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	id := xid.New().String()
	_, err := s.client.PutObject(ctx, s.bucket, id, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{displayNameKey: name},
	})
	if err != nil {
		return "", fmt.Errorf("minio: uploading %s: %w", name, err)
	}
	return id, nil
}

// Get stats first because GetObject is lazy: a missing key would otherwise
// only surface on the first Read.
func (s *Store) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	if _, err := s.stat(ctx, id); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapErr("opening", id, err)
	}
	return obj, nil
}

// Delete stats first because RemoveObject succeeds on missing keys.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.stat(ctx, id); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return mapErr("deleting", id, err)
	}
	return nil
}

func (s *Store) Rename(ctx context.Context, id, newName string) error {
	info, err := s.stat(ctx, id)
	if err != nil {
		return err
	}

	meta := make(map[string]string, len(info.UserMetadata)+1)
	for k, v := range info.UserMetadata {
		if !strings.EqualFold(k, displayNameKey) {
			meta[k] = v
		}
	}
	meta[displayNameKey] = newName

	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          s.bucket,
			Object:          id,
			UserMetadata:    meta,
			ReplaceMetadata: true,
			ContentType:     info.ContentType,
		},
		minio.CopySrcOptions{Bucket: s.bucket, Object: id},
	)
	if err != nil {
		return mapErr("renaming", id, err)
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, id string) (*blobstore.Info, error) {
	info, err := s.stat(ctx, id)
	if err != nil {
		return nil, err
	}
	out := toInfo(info)
	return &out, nil
}

func (s *Store) stat(ctx context.Context, id string) (minio.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		return minio.ObjectInfo{}, mapErr("stat", id, err)
	}
	return info, nil
}

// List walks the bucket. WithMetadata fills display names on MinIO servers;
// other S3 implementations may leave them empty.
func (s *Store) List(ctx context.Context, fn func(blobstore.Info) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true, WithMetadata: true}) {
		if obj.Err != nil {
			return fmt.Errorf("minio: listing %s: %w", s.bucket, obj.Err)
		}
		if err := fn(toInfo(obj)); err != nil {
			return err
		}
	}
	return nil
}

func toInfo(obj minio.ObjectInfo) blobstore.Info {
	return blobstore.Info{
		ID:          obj.Key,
		Name:        displayName(obj.UserMetadata),
		ContentType: obj.ContentType,
		Size:        obj.Size,
		UploadedAt:  obj.LastModified,
	}
}

// displayName finds the name regardless of how the server cased the key
// ("display-name", "Display-Name", "X-Amz-Meta-Display-Name").
func displayName(meta map[string]string) string {
	for k, v := range meta {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k == displayNameKey {
			return v
		}
	}
	return ""
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == minio.NoSuchKey
}

func mapErr(op, id string, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("minio: %s %s: %w", op, id, blobstore.ErrNotFound)
	}
	return fmt.Errorf("minio: %s %s: %w", op, id, err)
}
