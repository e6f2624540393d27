package minio

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photovault/internal/blobstore"
	"github.com/sakif/photovault/internal/blobstore/blobstoretest"
)

// liveStore creates a fresh bucket on MINIO_ENDPOINT and removes it, with
// its objects, when the test ends. Without MINIO_ENDPOINT the test is
// skipped.
//
//	MINIO_ENDPOINT=localhost:9000 MINIO_ACCESS_KEY=minioadmin MINIO_SECRET_KEY=minioadmin \
//	  go test ./internal/blobstore/minio/
func liveStore(t *testing.T) *Store {
	t.Helper()
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s, err := New(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    "photovault-test-" + xid.New().String(),
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
			if obj.Err == nil {
				_ = s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{})
			}
		}
		_ = s.client.RemoveBucket(ctx, s.bucket)
	})
	return s
}

func TestLive_StoreContract(t *testing.T) {
	blobstoretest.Run(t, func(t *testing.T) blobstore.Store { return liveStore(t) })
}

// Rename is a server-side copy onto the same key. Other user metadata must
// survive it and the listing must show the new name.
func TestLive_RenameKeepsOtherMetadata(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()

	_, err := s.client.PutObject(ctx, s.bucket, "tagged", bytes.NewReader([]byte("png")), 3, minio.PutObjectOptions{
		ContentType:  "image/png",
		UserMetadata: map[string]string{displayNameKey: "old.png", "camera": "Canon"},
	})
	require.NoError(t, err)

	require.NoError(t, s.Rename(ctx, "tagged", "new.png"))

	info, err := s.stat(ctx, "tagged")
	require.NoError(t, err)
	assert.Equal(t, "new.png", displayName(info.UserMetadata))
	assert.Equal(t, "image/png", info.ContentType)

	var camera string
	for k, v := range info.UserMetadata {
		if k == "Camera" || k == "camera" || k == "X-Amz-Meta-Camera" {
			camera = v
		}
	}
	assert.Equal(t, "Canon", camera)

	var listed string
	require.NoError(t, s.List(ctx, func(b blobstore.Info) error {
		if b.ID == "tagged" {
			listed = b.Name
		}
		return nil
	}))
	assert.Equal(t, "new.png", listed)
}
