// Package events announces photo lifecycle changes and consistency alerts.
//
// Events are notifications, not part of the operation: a publish failure is
// logged by the caller and never turns a successful upload into an error.
// Consistency alerts (a blob deleted but its record left behind, a rename
// rollback that failed) go out on the same exchange so an operator's
// consumer can page on them.
package events

import (
	"context"
	"time"

	"github.com/sakif/photovault/internal/model"
)

// Routing keys on the topic exchange. Consumers bind with patterns such as
// "photo.*" or "consistency.#".
const (
	TypePhotoUploaded    = "photo.uploaded"
	TypePhotoDeleted     = "photo.deleted"
	TypePhotoRenamed     = "photo.renamed"
	TypeConsistencyAlert = "consistency.alert"
)

type Event struct {
	Type       string    `json:"type"`
	PhotoID    string    `json:"photoId,omitempty"`
	OwnerID    string    `json:"ownerId,omitempty"`
	BlobID     string    `json:"blobId,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Previous   string    `json:"previousFilename,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

func PhotoUploaded(p *model.Photo) Event {
	return Event{
		Type:       TypePhotoUploaded,
		PhotoID:    p.ID,
		OwnerID:    p.OwnerID,
		BlobID:     p.BlobID,
		Filename:   p.Filename,
		OccurredAt: time.Now().UTC(),
	}
}

func PhotoDeleted(p *model.Photo) Event {
	return Event{
		Type:       TypePhotoDeleted,
		PhotoID:    p.ID,
		OwnerID:    p.OwnerID,
		BlobID:     p.BlobID,
		Filename:   p.Filename,
		OccurredAt: time.Now().UTC(),
	}
}

func PhotoRenamed(p *model.Photo, previous string) Event {
	return Event{
		Type:       TypePhotoRenamed,
		PhotoID:    p.ID,
		OwnerID:    p.OwnerID,
		BlobID:     p.BlobID,
		Filename:   p.Filename,
		Previous:   previous,
		OccurredAt: time.Now().UTC(),
	}
}

// ConsistencyAlert reports that the blob store and the metadata store
// disagree. kind is an apperror kind string or "orphan_blob".
func ConsistencyAlert(kind, photoID, blobID, detail string) Event {
	return Event{
		Type:       TypeConsistencyAlert,
		PhotoID:    photoID,
		BlobID:     blobID,
		Kind:       kind,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
}

// Noop discards every event. Used when RABBITMQ_URI is empty.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
