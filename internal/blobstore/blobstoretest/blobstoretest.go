// Package blobstoretest checks a blobstore.Store against the behaviour the
// photo coordinator relies on. Every backend's tests run it:
//
//	func TestStoreContract(t *testing.T) {
//		blobstoretest.Run(t, func(t *testing.T) blobstore.Store { return newStore(t) })
//	}
package blobstoretest

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photovault/internal/blobstore"
)

// Run executes every check as a subtest. newStore must return an empty store
// that the subtest owns.
func Run(t *testing.T, newStore func(t *testing.T) blobstore.Store) {
	t.Run("PutGetStat", func(t *testing.T) { testPutGetStat(t, newStore(t)) })
	t.Run("RenameKeepsBytes", func(t *testing.T) { testRename(t, newStore(t)) })
	t.Run("DeleteThenNotFound", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListWalksAll", func(t *testing.T) { testList(t, newStore(t)) })
}

func put(t *testing.T, s blobstore.Store, name string, data []byte) string {
	t.Helper()
	id, err := s.Put(context.Background(), name, "image/jpeg", data)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func read(t *testing.T, s blobstore.Store, id string) []byte {
	t.Helper()
	rc, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func testPutGetStat(t *testing.T, s blobstore.Store) {
	ctx := context.Background()
	data := []byte("\xff\xd8\xff fake jpeg bytes")

	id := put(t, s, "IMG_0001.jpg", data)
	other := put(t, s, "IMG_0001.jpg", data)
	assert.NotEqual(t, id, other, "every Put gets its own ID")

	assert.Equal(t, data, read(t, s, id))

	info, err := s.Stat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, "IMG_0001.jpg", info.Name)
	assert.Equal(t, "image/jpeg", info.ContentType)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.False(t, info.UploadedAt.IsZero())
}

func testRename(t *testing.T, s blobstore.Store) {
	ctx := context.Background()
	id := put(t, s, "a.jpg", []byte("bytes"))

	require.NoError(t, s.Rename(ctx, id, "vacation.jpg"))

	info, err := s.Stat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "vacation.jpg", info.Name)
	assert.Equal(t, "image/jpeg", info.ContentType, "rename keeps the content type")
	assert.Equal(t, []byte("bytes"), read(t, s, id))
}

func testDelete(t *testing.T, s blobstore.Store) {
	ctx := context.Background()
	id := put(t, s, "a.jpg", []byte("bytes"))

	require.NoError(t, s.Delete(ctx, id))

	_, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, blobstore.ErrNotFound, "Get")
	_, err = s.Stat(ctx, id)
	assert.ErrorIs(t, err, blobstore.ErrNotFound, "Stat")
	assert.ErrorIs(t, s.Rename(ctx, id, "b.jpg"), blobstore.ErrNotFound, "Rename")
	assert.ErrorIs(t, s.Delete(ctx, id), blobstore.ErrNotFound, "second Delete")
}

func testList(t *testing.T, s blobstore.Store) {
	ctx := context.Background()
	want := map[string]bool{
		put(t, s, "a.jpg", []byte("a")): true,
		put(t, s, "b.jpg", []byte("b")): true,
	}

	seen := map[string]bool{}
	require.NoError(t, s.List(ctx, func(info blobstore.Info) error {
		seen[info.ID] = true
		return nil
	}))
	assert.Equal(t, want, seen)

	stop := errors.New("stop")
	calls := 0
	err := s.List(ctx, func(blobstore.Info) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
