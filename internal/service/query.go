package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

// PhotoQuery is the raw, string-typed listing query as it arrives over HTTP.
type PhotoQuery struct {
	UserID     string
	DateTaken  string // "2024-01-01" (that UTC day) or RFC3339 (that second)
	Tags       string // comma-separated, matches photos with ANY of them
	IsFavorite string // "true" / "false"
}

// ParsePhotoQuery validates q and turns it into a store filter.
//
// dateTaken precision follows the input:
//
//	"2024-01-01"            → [2024-01-01T00:00:00Z, 2024-01-02T00:00:00Z)
//	"2024-01-01T10:00:00Z"  → [10:00:00, 10:00:01)
func ParsePhotoQuery(q PhotoQuery) (repository.PhotoFilter, error) {
	filter := repository.PhotoFilter{OwnerID: strings.TrimSpace(q.UserID)}

	if raw := strings.TrimSpace(q.DateTaken); raw != "" {
		from, width, err := parseDateTaken(raw)
		if err != nil {
			return filter, apperror.ValidationFailed("dateTaken",
				"dateTaken must be YYYY-MM-DD or an RFC3339 timestamp")
		}
		before := from.Add(width)
		filter.TakenFrom = &from
		filter.TakenBefore = &before
	}

	if raw := strings.TrimSpace(q.Tags); raw != "" {
		filter.Tags = model.NormalizeTags(strings.Split(raw, ","))
	}

	if raw := strings.TrimSpace(q.IsFavorite); raw != "" {
		fav, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperror.ValidationFailed("isFavorite", "isFavorite must be true or false")
		}
		filter.Favorite = &fav
	}

	return filter, nil
}

func parseDateTaken(raw string) (time.Time, time.Duration, error) {
	if day, err := time.Parse(time.DateOnly, raw); err == nil {
		return day, 24 * time.Hour, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, 0, err
	}
	return t.UTC().Truncate(time.Second), time.Second, nil
}

// List returns callerID's photos matching q. Listing another user's photos
// is refused even when q names them explicitly.
func (s *PhotoService) List(ctx context.Context, callerID string, q PhotoQuery) (photos []model.Photo, err error) {
	defer s.observe("list", &err)

	// An empty owner filter would match every user's photos.
	if callerID == "" {
		return nil, apperror.Forbidden("authentication required")
	}
	if strings.TrimSpace(q.UserID) == "" {
		q.UserID = callerID
	}
	if q.UserID != callerID {
		return nil, apperror.Forbidden("you can only list your own photos")
	}

	filter, err := ParsePhotoQuery(q)
	if err != nil {
		return nil, err
	}

	photos, err = s.photos.FindByFilter(ctx, filter)
	if err != nil {
		s.logger.Error("listing photos", "owner_id", callerID, "error", err)
		return nil, apperror.Internal("failed to list photos", err)
	}
	return photos, nil
}
