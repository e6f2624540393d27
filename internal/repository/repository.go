// Package repository declares the metadata store contracts.
//
// The service layer only ever talks to these interfaces. Two backends
// implement them: repository/sqlite (embedded, single file) and
// repository/mongo (document store). Swapping one for the other is a config
// change in cmd/server, not a code change in the service layer.
//
// ERROR CONTRACT:
//   - a missing record is reported as an *apperror.AppError wrapping ErrNotFound
//   - a duplicate unique key on users is reported as ErrConflict
//   - anything else is a wrapped driver error ("sqlite: ...", "mongo: ...")
package repository

import (
	"context"
	"time"

	"github.com/sakif/photovault/internal/model"
)

// PhotoFilter selects photos for listing. Zero-valued fields do not filter.
//
// TakenFrom/TakenBefore form a half-open interval [from, before). A single
// calendar day is expressed as [midnight, next midnight).
type PhotoFilter struct {
	OwnerID     string
	TakenFrom   *time.Time
	TakenBefore *time.Time
	Tags        []string // matches photos carrying ANY of these tags
	Favorite    *bool
}

// PhotoUpdate names the fields to overwrite. A nil field is left alone,
// so a single call can touch exactly one column.
type PhotoUpdate struct {
	Filename    *string
	Tags        *[]string
	Description *string
}

// Empty reports whether the update would change nothing.
func (u PhotoUpdate) Empty() bool {
	return u.Filename == nil && u.Tags == nil && u.Description == nil
}

type PhotoRepository interface {
	Insert(ctx context.Context, photo *model.Photo) error
	FindByID(ctx context.Context, id string) (*model.Photo, error)
	FindByBlobID(ctx context.Context, blobID string) (*model.Photo, error)
	FindByFilter(ctx context.Context, filter PhotoFilter) ([]model.Photo, error)
	UpdateFields(ctx context.Context, id string, update PhotoUpdate) error
	// ToggleFavorite flips is_favorite inside the store and returns the new value.
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	DeleteByID(ctx context.Context, id string) error
	ReferencesBlob(ctx context.Context, blobID string) (bool, error)
}

type UserRepository interface {
	Insert(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	DeleteByUsername(ctx context.Context, username string) error
	CountAll(ctx context.Context) (int64, error)
}
