// Package mongo is the MongoDB metadata backend.
//
// Collections:
//
//	users   unique indexes on email and username
//	photos  indexes on userId and dateTaken, unique on gridFSFileId
//
// Photo and user IDs are ObjectID hex strings stored as the string _id, so
// they stay opaque to every other layer.
package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	usersCollection  = "users"
	photosCollection = "photos"

	emailIndex    = "users_email_unique"
	usernameIndex = "users_username_unique"
)

// DB owns the client. Close it on shutdown.
type DB struct {
	client   *mongo.Client
	database *mongo.Database
}

// Connect dials uri, pings the server and ensures indexes on dbName.
func Connect(ctx context.Context, uri, dbName string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	db := &DB{client: client, database: client.Database(dbName)}
	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return db, nil
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	users := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(usernameIndex),
		},
	}
	if _, err := db.database.Collection(usersCollection).Indexes().CreateMany(ctx, users); err != nil {
		return fmt.Errorf("mongo: creating user indexes: %w", err)
	}

	photos := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "uploadedAt", Value: -1}}},
		{Keys: bson.D{{Key: "dateTaken", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{
			Keys:    bson.D{{Key: "gridFSFileId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.database.Collection(photosCollection).Indexes().CreateMany(ctx, photos); err != nil {
		return fmt.Errorf("mongo: creating photo indexes: %w", err)
	}
	return nil
}

// Database exposes the handle so the GridFS blob store can share the client.
func (db *DB) Database() *mongo.Database {
	return db.database
}

func (db *DB) Users() *UserStore {
	return &UserStore{coll: db.database.Collection(usersCollection)}
}

func (db *DB) Photos() *PhotoStore {
	return &PhotoStore{coll: db.database.Collection(photosCollection)}
}

func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// duplicateField maps a duplicate-key error on users to the offending field.
func duplicateField(err error) (string, bool) {
	if !mongo.IsDuplicateKeyError(err) {
		return "", false
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, emailIndex):
		return "email", true
	case strings.Contains(msg, usernameIndex):
		return "username", true
	default:
		return "user", true
	}
}
