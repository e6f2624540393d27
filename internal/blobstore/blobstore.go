// Package blobstore declares the contract for storing raw image bytes.
//
// A blob is opaque: the store assigns its ID, keeps a display name that can be
// renamed independently of the bytes, and never interprets the content.
// Each single-blob operation is atomic on its own. Keeping blobs consistent
// with photo records is the coordinator's job (service/photo.go), not the
// store's.
//
// Backends:
//   - repository/sqlite   a blobs table next to the metadata (DB.Blobs())
//   - blobstore/gridfs    MongoDB GridFS bucket
//   - blobstore/minio     any S3-compatible object store
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned (wrapped) by every backend when an ID has no blob.
var ErrNotFound = errors.New("blob not found")

// Info describes a stored blob without its bytes.
type Info struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
	UploadedAt  time.Time
}

type Store interface {
	// Put stores data under a freshly assigned ID and returns that ID.
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	// Get opens the blob for reading. The caller must Close the reader.
	Get(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
	// Rename changes the display name only. The ID and bytes are unchanged.
	Rename(ctx context.Context, id, newName string) error
	Stat(ctx context.Context, id string) (*Info, error)
	// List calls fn once per stored blob. Returning an error from fn stops the walk.
	List(ctx context.Context, fn func(Info) error) error
}
