package gridfs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/photovault/internal/blobstore"
	"github.com/sakif/photovault/internal/blobstore/blobstoretest"
)

// liveStore returns a Store on a throwaway database at MONGODB_URI, dropped
// when the test ends. Without MONGODB_URI the test is skipped.
func liveStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("photovault_gridfs_test_" + xid.New().String())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return New(db, "")
}

func TestLive_StoreContract(t *testing.T) {
	blobstoretest.Run(t, func(t *testing.T) blobstore.Store { return liveStore(t) })
}

// Blob IDs that are not ObjectIDs can never exist, and are reported as
// missing without a round trip.
func TestLive_ForeignIDIsNotFound(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "cq3h2k8p0000000000a0")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.ErrorIs(t, s.Rename(ctx, "cq3h2k8p0000000000a0", "x.jpg"), blobstore.ErrNotFound)
}
