package minio

import (
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/photovault/internal/blobstore"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]string
		want string
	}{
		{"lower", map[string]string{"display-name": "a.jpg"}, "a.jpg"},
		{"canonical", map[string]string{"Display-Name": "b.jpg"}, "b.jpg"},
		{"amz prefix", map[string]string{"X-Amz-Meta-Display-Name": "c.jpg"}, "c.jpg"},
		{"absent", map[string]string{"Other": "x"}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, displayName(tt.meta))
		})
	}
}

func TestMapErr(t *testing.T) {
	missing := minio.ErrorResponse{Code: minio.NoSuchKey, StatusCode: 404}
	assert.ErrorIs(t, mapErr("stat", "k", missing), blobstore.ErrNotFound)

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
	assert.NotErrorIs(t, mapErr("stat", "k", denied), blobstore.ErrNotFound)

	assert.NotErrorIs(t, mapErr("stat", "k", errors.New("dial tcp: refused")), blobstore.ErrNotFound)
}

func TestToInfo(t *testing.T) {
	when := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	info := toInfo(minio.ObjectInfo{
		Key:          "cn1abc",
		Size:         42,
		ContentType:  "image/png",
		LastModified: when,
		UserMetadata: map[string]string{"Display-Name": "shot.png"},
	})

	assert.Equal(t, blobstore.Info{
		ID:          "cn1abc",
		Name:        "shot.png",
		ContentType: "image/png",
		Size:        42,
		UploadedAt:  when,
	}, info)
}
