package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

type UserStore struct {
	coll *mongo.Collection
}

func (s *UserStore) Insert(ctx context.Context, user *model.User) error {
	user.ID = bson.NewObjectID().Hex()
	user.CreatedAt = time.Now().UTC()

	if _, err := s.coll.InsertOne(ctx, user); err != nil {
		if field, ok := duplicateField(err); ok {
			return apperror.Conflict("user", field)
		}
		return fmt.Errorf("mongo: inserting user %s: %w", user.Username, err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, "_id", id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, "email", email)
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findOne(ctx, "username", username)
}

func (s *UserStore) findOne(ctx context.Context, field, value string) (*model.User, error) {
	var user model.User
	err := s.coll.FindOne(ctx, bson.D{{Key: field, Value: value}}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("mongo: finding user by %s: %w", field, err)
	}
	return &user, nil
}

func (s *UserStore) DeleteByUsername(ctx context.Context, username string) error {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "username", Value: username}})
	if err != nil {
		return fmt.Errorf("mongo: deleting user %s: %w", username, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("user", username)
	}
	return nil
}

func (s *UserStore) CountAll(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo: counting users: %w", err)
	}
	return n, nil
}
