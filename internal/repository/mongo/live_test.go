package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

// liveDB connects to MONGODB_URI and returns a throwaway database that is
// dropped when the test ends. Without MONGODB_URI the test is skipped.
//
//	MONGODB_URI=mongodb://localhost:27017 go test ./internal/repository/mongo/
func liveDB(t *testing.T) *DB {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	db, err := Connect(ctx, uri, "photovault_test_"+xid.New().String())
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = db.Database().Drop(ctx)
		_ = db.Close(ctx)
	})
	return db
}

func livePhoto(owner, blobID string, tags ...string) *model.Photo {
	camMake := "Canon"
	return &model.Photo{
		OwnerID:     owner,
		Filename:    blobID + ".jpg",
		BlobID:      blobID,
		ContentType: "image/jpeg",
		Tags:        tags,
		ImportantMetadata: model.ImportantMetadata{
			Make:     &camMake,
			Location: &model.Location{Latitude: 34.0522, Longitude: -118.2437},
		},
	}
}

// ============================================================
// Photos
// ============================================================

func TestLive_PhotoInsertAndFind(t *testing.T) {
	photos := liveDB(t).Photos()
	ctx := context.Background()

	taken := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	p := livePhoto("u1", "blob-1", "beach", "beach", " sunset ")
	p.DateTaken = &taken
	p.FullMetadata = []byte(`{"Make":"Canon"}`)
	require.NoError(t, photos.Insert(ctx, p))
	require.NotEmpty(t, p.ID)

	got, err := photos.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "sunset"}, got.Tags)
	assert.False(t, got.IsFavorite)
	require.NotNil(t, got.DateTaken)
	assert.True(t, taken.Equal(*got.DateTaken))
	require.NotNil(t, got.ImportantMetadata.Make)
	assert.Equal(t, "Canon", *got.ImportantMetadata.Make)
	assert.Equal(t, &model.Location{Latitude: 34.0522, Longitude: -118.2437}, got.ImportantMetadata.Location)
	assert.JSONEq(t, `{"Make":"Canon"}`, string(got.FullMetadata))

	byBlob, err := photos.FindByBlobID(ctx, "blob-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byBlob.ID)

	_, err = photos.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestLive_PhotoToggleFavorite(t *testing.T) {
	photos := liveDB(t).Photos()
	ctx := context.Background()

	p := livePhoto("u1", "blob-1")
	require.NoError(t, photos.Insert(ctx, p))

	on, err := photos.ToggleFavorite(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, on)

	off, err := photos.ToggleFavorite(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, off, "two toggles restore the original value")

	_, err = photos.ToggleFavorite(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestLive_PhotoUpdateFields(t *testing.T) {
	photos := liveDB(t).Photos()
	ctx := context.Background()

	p := livePhoto("u1", "blob-1", "old")
	require.NoError(t, photos.Insert(ctx, p))

	name := "renamed.jpg"
	desc := "Golden hour"
	tags := []string{"new"}
	require.NoError(t, photos.UpdateFields(ctx, p.ID, repository.PhotoUpdate{Filename: &name, Description: &desc, Tags: &tags}))

	got, err := photos.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed.jpg", got.Filename)
	assert.Equal(t, []string{"new"}, got.Tags)
	require.NotNil(t, got.Description)
	assert.Equal(t, "Golden hour", *got.Description)

	err = photos.UpdateFields(ctx, "missing", repository.PhotoUpdate{Filename: &name})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestLive_PhotoFilterAndDelete(t *testing.T) {
	photos := liveDB(t).Photos()
	ctx := context.Background()

	jan := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	beach := livePhoto("u1", "blob-1", "beach")
	beach.DateTaken = &jan
	require.NoError(t, photos.Insert(ctx, beach))
	require.NoError(t, photos.Insert(ctx, livePhoto("u1", "blob-2", "city")))
	require.NoError(t, photos.Insert(ctx, livePhoto("u2", "blob-3", "beach")))

	mine, err := photos.FindByFilter(ctx, repository.PhotoFilter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	tagged, err := photos.FindByFilter(ctx, repository.PhotoFilter{OwnerID: "u1", Tags: []string{"beach", "forest"}})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, beach.ID, tagged[0].ID)

	dayEnd := jan.Add(14 * time.Hour)
	onDay, err := photos.FindByFilter(ctx, repository.PhotoFilter{OwnerID: "u1", TakenFrom: &jan, TakenBefore: &dayEnd})
	require.NoError(t, err)
	require.Len(t, onDay, 1)
	assert.Equal(t, beach.ID, onDay[0].ID)

	referenced, err := photos.ReferencesBlob(ctx, "blob-1")
	require.NoError(t, err)
	assert.True(t, referenced)

	require.NoError(t, photos.DeleteByID(ctx, beach.ID))
	assert.ErrorIs(t, photos.DeleteByID(ctx, beach.ID), apperror.ErrNotFound)

	referenced, err = photos.ReferencesBlob(ctx, "blob-1")
	require.NoError(t, err)
	assert.False(t, referenced)
}

// ============================================================
// Users
// ============================================================

func TestLive_Users(t *testing.T) {
	users := liveDB(t).Users()
	ctx := context.Background()

	n, err := users.CountAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	ada := &model.User{Name: "Ada", Email: "ada@example.com", Username: "ada", PasswordHash: "$2a$04$x"}
	require.NoError(t, users.Insert(ctx, ada))

	t.Run("duplicate email", func(t *testing.T) {
		err := users.Insert(ctx, &model.User{Email: "ada@example.com", Username: "other"})
		require.ErrorIs(t, err, apperror.ErrConflict)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "email", appErr.Field)
	})

	t.Run("duplicate username", func(t *testing.T) {
		err := users.Insert(ctx, &model.User{Email: "other@example.com", Username: "ada"})
		require.ErrorIs(t, err, apperror.ErrConflict)
	})

	byEmail, err := users.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, ada.ID, byEmail.ID)
	assert.Equal(t, "$2a$04$x", byEmail.PasswordHash)

	byID, err := users.FindByID(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", byID.Username)

	require.NoError(t, users.DeleteByUsername(ctx, "ada"))
	_, err = users.FindByUsername(ctx, "ada")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, users.DeleteByUsername(ctx, "ada"), apperror.ErrNotFound)
}
