// Package backend turns configuration into connected stores.
//
// Both entry points (cmd/server and cmd/photoctl) need the same stores,
// locker and publisher built from the same config, so the selection logic
// lives here once:
//
//	METADATA_BACKEND  sqlite | mongo          → repository.{Photo,User}Repository
//	BLOB_BACKEND      sqlite | gridfs | minio → blobstore.Store
//	LOCK_BACKEND      none | local | redis    → lock.Locker
//	RABBITMQ_URI      "" | amqp://...         → events.Publisher
//
// A connection is opened at most once: SQLite metadata and SQLite blobs
// share one file, MongoDB metadata and GridFS share one client.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/photovault/internal/blobstore"
	"github.com/sakif/photovault/internal/blobstore/gridfs"
	miniostore "github.com/sakif/photovault/internal/blobstore/minio"
	"github.com/sakif/photovault/internal/config"
	"github.com/sakif/photovault/internal/events"
	"github.com/sakif/photovault/internal/lock"
	"github.com/sakif/photovault/internal/repository"
	mongorepo "github.com/sakif/photovault/internal/repository/mongo"
	sqliterepo "github.com/sakif/photovault/internal/repository/sqlite"
)

// Backends is everything a photovault process talks to.
type Backends struct {
	Photos repository.PhotoRepository
	Users  repository.UserRepository
	Blobs  blobstore.Store
	Locker lock.Locker
	Events events.Publisher

	closers []func(context.Context) error
}

// Open connects every configured backend. On error, whatever was already
// opened is closed again before returning.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Backends, err error) {
	b := &Backends{Locker: lock.Noop{}, Events: events.Noop{}}
	defer func() {
		if err != nil {
			_ = b.Close(context.WithoutCancel(ctx))
		}
	}()

	var (
		sqliteDB *sqliterepo.DB
		mongoDB  *mongorepo.DB
	)

	if cfg.Storage.MetadataBackend == config.BackendSQLite || cfg.Storage.BlobBackend == config.BackendSQLite {
		if sqliteDB, err = openSQLite(cfg.Storage.DBPath); err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(context.Context) error { return sqliteDB.Close() })
	}
	if cfg.Storage.MetadataBackend == config.BackendMongo || cfg.Storage.BlobBackend == config.BackendGridFS {
		if mongoDB, err = mongorepo.Connect(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database); err != nil {
			return nil, err
		}
		b.closers = append(b.closers, mongoDB.Close)
	}

	// --- metadata ---
	switch cfg.Storage.MetadataBackend {
	case config.BackendSQLite:
		b.Photos, b.Users = sqliteDB.Photos(), sqliteDB.Users()
	case config.BackendMongo:
		b.Photos, b.Users = mongoDB.Photos(), mongoDB.Users()
	default:
		return nil, fmt.Errorf("backend: unknown metadata backend %q", cfg.Storage.MetadataBackend)
	}

	// --- blobs ---
	switch cfg.Storage.BlobBackend {
	case config.BackendSQLite:
		b.Blobs = sqliteDB.Blobs()
	case config.BackendGridFS:
		b.Blobs = gridfs.New(mongoDB.Database(), cfg.MongoDB.GridFSBucket)
	case config.BackendMinIO:
		store, err := miniostore.New(ctx, miniostore.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    cfg.MinIO.Region,
		})
		if err != nil {
			return nil, err
		}
		b.Blobs = store
	default:
		return nil, fmt.Errorf("backend: unknown blob backend %q", cfg.Storage.BlobBackend)
	}

	// --- locking ---
	switch cfg.Lock.Backend {
	case config.LockNone, "":
	case config.LockLocal:
		b.Locker = lock.NewLocal()
	case config.LockRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		b.closers = append(b.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("backend: pinging redis at %s: %w", cfg.Lock.RedisAddr, err)
		}
		b.Locker = lock.NewRedis(client, cfg.Lock.TTL, logger.With("component", "lock"))
	default:
		return nil, fmt.Errorf("backend: unknown lock backend %q", cfg.Lock.Backend)
	}

	// --- events ---
	if cfg.RabbitMQ.URI != "" {
		publisher, err := events.NewRabbitMQ(cfg.RabbitMQ.URI)
		if err != nil {
			return nil, err
		}
		b.Events = publisher
	}

	logger.Info("backends ready",
		slog.String("metadata", cfg.Storage.MetadataBackend),
		slog.String("blobs", cfg.Storage.BlobBackend),
		slog.String("lock", cfg.Lock.Backend),
		slog.Bool("events", cfg.RabbitMQ.URI != ""),
	)
	return b, nil
}

func openSQLite(path string) (*sqliterepo.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("backend: creating database directory: %w", err)
		}
	}
	return sqliterepo.New(path)
}

// CloseStores closes store connections in reverse opening order.
func (b *Backends) CloseStores(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Close closes the publisher, then the stores.
func (b *Backends) Close(ctx context.Context) error {
	return errors.Join(b.Events.Close(), b.CloseStores(ctx))
}
