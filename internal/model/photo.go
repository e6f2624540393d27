package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Photo is the metadata record for one uploaded image.
//
// The image bytes live in the blob store; this record lives in the metadata
// store. BlobID is the only link between the two, so it must always point at
// a blob that exists, and every blob must be referenced by exactly one Photo.
//
// OPTIONAL FIELDS ARE POINTERS:
// A photo without EXIF has no capture time. Using *time.Time lets us store
// "absent" as nil instead of inventing 0001-01-01. Same for Size, Description,
// and the nested camera metadata.
type Photo struct {
	ID                string            `json:"id"                     bson:"_id"`
	OwnerID           string            `json:"userId"                 bson:"userId"`
	Filename          string            `json:"filename"               bson:"filename"`
	BlobID            string            `json:"gridFSFileId"           bson:"gridFSFileId"`
	ContentType       string            `json:"contentType"            bson:"contentType"`
	DateTaken         *time.Time        `json:"dateTaken,omitempty"    bson:"dateTaken,omitempty"`
	Size              *int64            `json:"size,omitempty"         bson:"size,omitempty"`
	Tags              []string          `json:"tags"                   bson:"tags"`
	Description       *string           `json:"description,omitempty"  bson:"description,omitempty"`
	IsFavorite        bool              `json:"isFavorite"             bson:"isFavorite"`
	ImportantMetadata ImportantMetadata `json:"importantMetadata"      bson:"importantMetadata"`
	FullMetadata      json.RawMessage   `json:"fullMetadata,omitempty" bson:"-"`
	UploadedAt        time.Time         `json:"uploadedAt"             bson:"uploadedAt"`
}

// ImportantMetadata is the subset of EXIF the API surfaces directly.
//
// The capitalized keys are the stored document shape, shared with records
// and clients that predate this server. Dimensions keeps lowercase width and
// height for the same reason.
type ImportantMetadata struct {
	Make       *string     `json:"Make,omitempty"       bson:"Make,omitempty"`
	Model      *string     `json:"Model,omitempty"      bson:"Model,omitempty"`
	Location   *Location   `json:"Location,omitempty"   bson:"Location,omitempty"`
	Dimensions *Dimensions `json:"Dimensions,omitempty" bson:"Dimensions,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"Latitude"  bson:"Latitude"`
	Longitude float64 `json:"Longitude" bson:"Longitude"`
}

type Dimensions struct {
	Width  int `json:"width"  bson:"width"`
	Height int `json:"height" bson:"height"`
}

// NormalizeTags trims each tag, drops empties and duplicates, and keeps the
// first-seen order. Tags have set semantics, so ["a","a"] and ["a"] are the
// same value and the store only ever sees the normalized form.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// HasTag reports whether the photo carries tag.
func (p *Photo) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
