// PhotoService coordinates photo storage across the metadata and blob stores.
//
// PhotoService keeps TWO independent stores in agreement:
//
//	blob store      (image bytes: SQLite blobs table, GridFS or MinIO)
//	metadata store  (photo records: SQLite or MongoDB)
//
// There is no transaction spanning both. Every multi-store operation is
// therefore an ordered sequence of single-store steps, with a compensating
// step wherever an early success must be undone after a later failure:
//
//	Ingest:  extract → put blob → insert record   (record fails → delete blob)
//	Delete:  delete blob → delete record          (record fails → PartialDeleteFailure)
//	Rename:  update record → rename blob          (blob fails → restore record)
//
// The orderings are chosen so that a failure leaves the cheaper, detectable
// inconsistency. An unreferenced blob is invisible to users and the
// reconciler (internal/reconcile) removes it. A record pointing at nothing
// is user-visible, so it is reported loudly as a consistency failure.
//
// AUTHORIZATION:
// Every mutation takes the caller's raw token and runs the ownership check
// (verify token → load record → compare owner) before touching anything.
// Any failure in that chain denies the request.

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/blobstore"
	"github.com/sakif/photovault/internal/events"
	"github.com/sakif/photovault/internal/exif"
	"github.com/sakif/photovault/internal/lock"
	"github.com/sakif/photovault/internal/metrics"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

// cleanupTimeout bounds compensating actions. They run on a context detached
// from the request, so a client hanging up mid-upload cannot cancel the
// delete that would otherwise leave an orphaned blob.
const cleanupTimeout = 10 * time.Second

// PhotoService is the photo storage coordinator.
//
// DEPENDENCIES:
//   - photos   repository.PhotoRepository  → metadata records
//   - blobs    blobstore.Store             → image bytes
//   - tokens   *auth.TokenService          → verifies the caller's token
//   - locker   lock.Locker                 → optional per-photo lease (default: none)
//   - events   events.Publisher            → lifecycle events and alerts (default: none)
//   - metrics  *metrics.Metrics            → operation and consistency counters
type PhotoService struct {
	photos  repository.PhotoRepository
	blobs   blobstore.Store
	tokens  *auth.TokenService
	locker  lock.Locker
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	extract func([]byte) (*exif.Extracted, error)
}

// PhotoOption customizes a PhotoService built by NewPhotoService.
type PhotoOption func(*PhotoService)

func WithLocker(l lock.Locker) PhotoOption {
	return func(s *PhotoService) { s.locker = l }
}

func WithEvents(p events.Publisher) PhotoOption {
	return func(s *PhotoService) { s.events = p }
}

func WithMetrics(m *metrics.Metrics) PhotoOption {
	return func(s *PhotoService) { s.metrics = m }
}

func NewPhotoService(
	photos repository.PhotoRepository,
	blobs blobstore.Store,
	tokens *auth.TokenService,
	logger *slog.Logger,
	opts ...PhotoOption,
) *PhotoService {
	s := &PhotoService{
		photos:  photos,
		blobs:   blobs,
		tokens:  tokens,
		locker:  lock.Noop{},
		events:  events.Noop{},
		metrics: metrics.New(),
		logger:  logger,
		extract: exif.Extract,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =========================================================================
// INGEST
// =========================================================================

// Ingest stores a new photo for ownerID and returns its record.
//
// Metadata is extracted FIRST. A file we cannot read is rejected before
// either store is touched, so the common bad-input case never needs a
// compensating delete.
func (s *PhotoService) Ingest(ctx context.Context, ownerID string, data []byte, displayName, contentType string) (photo *model.Photo, err error) {
	defer s.observe("ingest", &err)

	displayName = strings.TrimSpace(displayName)
	switch {
	case ownerID == "":
		return nil, apperror.MissingField("userId")
	case displayName == "":
		return nil, apperror.MissingField("filename")
	case len(data) == 0:
		return nil, apperror.MissingField("photo")
	case !isImageType(contentType):
		return nil, apperror.InvalidContentType(contentType)
	}

	extracted, err := s.extract(data)
	if err != nil {
		return nil, apperror.MetadataExtractionFailed(err)
	}

	blobID, err := s.blobs.Put(ctx, displayName, contentType, data)
	if err != nil {
		s.logger.Error("storing blob", "filename", displayName, "error", err)
		return nil, apperror.BlobWriteFailed("failed to store photo", err)
	}

	photo = &model.Photo{
		OwnerID:     ownerID,
		Filename:    displayName,
		BlobID:      blobID,
		ContentType: contentType,
		Tags:        []string{},
	}
	extracted.Apply(photo)

	if err := s.photos.Insert(ctx, photo); err != nil {
		s.logger.Error("inserting photo record", "blob_id", blobID, "error", err)
		s.discardBlob(ctx, blobID)
		return nil, apperror.RecordWriteFailed("failed to save photo metadata", err)
	}

	s.logger.Info("photo ingested",
		"photo_id", photo.ID,
		"blob_id", blobID,
		"owner_id", ownerID,
		"bytes", len(data),
	)
	s.publish(ctx, events.PhotoUploaded(photo))

	return photo, nil
}

// discardBlob is Ingest's compensating action. If it fails too the blob is
// an orphan: nothing references it and no user can see it. It is logged,
// counted and announced, and the reconciler deletes it on its next sweep.
func (s *PhotoService) discardBlob(ctx context.Context, blobID string) {
	cctx, cancel := cleanupContext(ctx)
	defer cancel()

	if err := s.blobs.Delete(cctx, blobID); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Error("orphaned blob left behind",
			"kind", "orphan_blob",
			"blob_id", blobID,
			"error", err,
		)
		s.metrics.ConsistencyFailure("orphan_blob")
		s.publish(ctx, events.ConsistencyAlert("orphan_blob", "", blobID, err.Error()))
	}
}

// isImageType accepts any well-formed "image/<subtype>" media type.
// Parameters such as "; charset=binary" are ignored.
func isImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	sub, ok := strings.CutPrefix(mediaType, "image/")
	return ok && sub != ""
}

// =========================================================================
// AUTHORIZATION
// =========================================================================

// AuthorizeOwnership succeeds only if token is valid and its subject owns
// photoID. Every failure denies: a store error while loading the record
// is an error, never a pass.
func (s *PhotoService) AuthorizeOwnership(ctx context.Context, token, photoID string) error {
	subject, err := s.subject(token)
	if err != nil {
		return err
	}
	_, err = s.loadOwned(ctx, subject, photoID)
	return err
}

func (s *PhotoService) subject(token string) (string, error) {
	subject, err := s.tokens.ExtractSubject(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return "", apperror.ExpiredToken(err)
		}
		return "", apperror.InvalidToken(err)
	}
	return subject, nil
}

// loadOwned fetches the record and checks that subject owns it. Owner IDs
// are compared as opaque strings.
func (s *PhotoService) loadOwned(ctx context.Context, subject, photoID string) (*model.Photo, error) {
	photo, err := s.photos.FindByID(ctx, photoID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Internal("failed to load photo", err)
	}
	if photo.OwnerID != subject {
		s.logger.Warn("ownership check failed", "photo_id", photoID, "subject", subject)
		return nil, apperror.Unauthorized("photo", photoID)
	}
	return photo, nil
}

// lockAndLoad is the common prologue of every mutation: verify the token,
// take the photo's lease, then load and ownership-check the record while
// holding it. Loading under the lease means the record we act on cannot be
// changed by a concurrent mutation of the same photo.
func (s *PhotoService) lockAndLoad(ctx context.Context, token, photoID string) (*model.Photo, func(), error) {
	subject, err := s.subject(token)
	if err != nil {
		return nil, nil, err
	}

	release, err := s.locker.Acquire(ctx, "photo:"+photoID)
	if err != nil {
		return nil, nil, apperror.LockUnavailable("photo "+photoID, err)
	}

	photo, err := s.loadOwned(ctx, subject, photoID)
	if err != nil {
		release()
		return nil, nil, err
	}
	return photo, release, nil
}

// =========================================================================
// READS
// =========================================================================

// Get returns the caller's own photo record.
func (s *PhotoService) Get(ctx context.Context, token, photoID string) (photo *model.Photo, err error) {
	subject, err := s.subject(token)
	if err != nil {
		return nil, err
	}
	return s.loadOwned(ctx, subject, photoID)
}

// Open resolves a download by blob ID: find the record that references the
// blob, check ownership, then stream the bytes. The caller closes the reader.
func (s *PhotoService) Open(ctx context.Context, token, blobID string) (photo *model.Photo, rc io.ReadCloser, err error) {
	defer s.observe("download", &err)

	subject, err := s.subject(token)
	if err != nil {
		return nil, nil, err
	}

	photo, err = s.photos.FindByBlobID(ctx, blobID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, apperror.Internal("failed to load photo", err)
	}
	if photo.OwnerID != subject {
		return nil, nil, apperror.Unauthorized("photo", photo.ID)
	}

	rc, err = s.blobs.Get(ctx, blobID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			// A record whose blob is gone: the one inconsistency users can see.
			s.logger.Error("photo record references a missing blob",
				"kind", "dangling_record",
				"photo_id", photo.ID,
				"blob_id", blobID,
			)
			s.metrics.ConsistencyFailure("dangling_record")
			return nil, nil, apperror.NotFound("photo file", blobID)
		}
		return nil, nil, apperror.Internal("failed to read photo", err)
	}

	return photo, rc, nil
}

// =========================================================================
// DELETE
// =========================================================================

// Delete removes a photo's blob, then its record.
//
// WHY BLOB FIRST?
// If the blob delete fails we stop with both stores untouched and the user
// can simply retry. If the record delete fails after the blob is gone, the
// record now points at nothing: that is a PartialDeleteFailure, logged at
// ERROR, counted, and announced, never silently swallowed.
func (s *PhotoService) Delete(ctx context.Context, token, photoID string) (err error) {
	defer s.observe("delete", &err)

	photo, release, err := s.lockAndLoad(ctx, token, photoID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.blobs.Delete(ctx, photo.BlobID); err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Error("deleting blob", "photo_id", photoID, "blob_id", photo.BlobID, "error", err)
			return apperror.BlobDeleteFailed(photo.BlobID, err)
		}
		// Already gone: removing the record is exactly what restores consistency.
		s.logger.Warn("blob already missing during delete", "photo_id", photoID, "blob_id", photo.BlobID)
	}

	if err := s.photos.DeleteByID(ctx, photoID); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		appErr := apperror.PartialDeleteFailure(photoID, photo.BlobID, err)
		s.reportInconsistency(ctx, appErr, photoID, photo.BlobID)
		return appErr
	}

	s.logger.Info("photo deleted", "photo_id", photoID, "blob_id", photo.BlobID)
	s.publish(ctx, events.PhotoDeleted(photo))
	return nil
}

// =========================================================================
// RENAME
// =========================================================================

// Rename changes the display name in the record and on the blob.
//
// The record is updated first and the previous name kept in hand. If the
// blob rename then fails, the record is written back to the previous name.
// Only if THAT write also fails do the stores disagree (RollbackFailed).
// A record that vanished in between was deleted along with its blob, which
// is reported as NotFound.
func (s *PhotoService) Rename(ctx context.Context, token, photoID, newFilename string) (photo *model.Photo, err error) {
	defer s.observe("rename", &err)

	newFilename = strings.TrimSpace(newFilename)
	if newFilename == "" {
		return nil, apperror.MissingField("newFilename")
	}

	photo, release, err := s.lockAndLoad(ctx, token, photoID)
	if err != nil {
		return nil, err
	}
	defer release()

	original := photo.Filename
	if original == newFilename {
		return photo, nil
	}

	if err := s.photos.UpdateFields(ctx, photoID, repository.PhotoUpdate{Filename: &newFilename}); err != nil {
		s.logger.Error("renaming photo record", "photo_id", photoID, "error", err)
		return nil, apperror.RecordWriteFailed("failed to rename photo", err)
	}

	if err := s.blobs.Rename(ctx, photo.BlobID, newFilename); err != nil {
		s.logger.Error("renaming blob, restoring record", "photo_id", photoID, "blob_id", photo.BlobID, "error", err)

		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if rbErr := s.photos.UpdateFields(cctx, photoID, repository.PhotoUpdate{Filename: &original}); rbErr != nil {
			if errors.Is(rbErr, apperror.ErrNotFound) {
				// A concurrent Delete removed the blob and then the record.
				// Both stores agree the photo is gone.
				s.logger.Warn("photo deleted during rename", "photo_id", photoID, "blob_id", photo.BlobID)
				return nil, apperror.NotFound("photo", photoID)
			}
			appErr := apperror.RollbackFailed(photoID, errors.Join(err, rbErr))
			s.reportInconsistency(ctx, appErr, photoID, photo.BlobID)
			return nil, appErr
		}
		return nil, apperror.BlobWriteFailed("failed to rename photo file", err)
	}

	photo.Filename = newFilename
	s.logger.Info("photo renamed", "photo_id", photoID, "from", original, "to", newFilename)
	s.publish(ctx, events.PhotoRenamed(photo, original))
	return photo, nil
}

// =========================================================================
// METADATA
// =========================================================================

// MetadataUpdate carries the user-editable fields. nil means "leave alone";
// a non-nil empty slice clears all tags.
type MetadataUpdate struct {
	Tags        *[]string
	Description *string
}

// MetadataResult reports which parts of an update were applied. It is
// returned even alongside an error, so callers can tell a total failure
// from "tags saved, description not".
type MetadataResult struct {
	Photo              *model.Photo
	TagsUpdated        bool
	DescriptionUpdated bool
}

// UpdateMetadata writes tags, then description, as two independent writes.
// A description failure does NOT undo the tags: both are user-owned fields
// with no cross-store invariant, and the result says what landed.
func (s *PhotoService) UpdateMetadata(ctx context.Context, token, photoID string, update MetadataUpdate) (result *MetadataResult, err error) {
	defer s.observe("update_metadata", &err)

	result = &MetadataResult{}
	if update.Tags == nil && update.Description == nil {
		return result, apperror.MissingField("tags or description")
	}

	photo, release, err := s.lockAndLoad(ctx, token, photoID)
	if err != nil {
		return result, err
	}
	defer release()
	result.Photo = photo

	if update.Tags != nil {
		tags := model.NormalizeTags(*update.Tags)
		if err := s.photos.UpdateFields(ctx, photoID, repository.PhotoUpdate{Tags: &tags}); err != nil {
			s.logger.Error("updating tags", "photo_id", photoID, "error", err)
			return result, apperror.RecordWriteFailed("failed to update tags", err)
		}
		photo.Tags = tags
		result.TagsUpdated = true
	}

	if update.Description != nil {
		if err := s.photos.UpdateFields(ctx, photoID, repository.PhotoUpdate{Description: update.Description}); err != nil {
			s.logger.Error("updating description", "photo_id", photoID, "tags_applied", result.TagsUpdated, "error", err)
			msg := "failed to update description"
			if result.TagsUpdated {
				msg += " (tags were updated)"
			}
			return result, apperror.RecordWriteFailed(msg, err)
		}
		desc := *update.Description
		photo.Description = &desc
		result.DescriptionUpdated = true
	}

	return result, nil
}

// ToggleFavorite flips the favorite flag and returns the new value. The
// flip happens inside the store, so concurrent toggles never lose an update.
func (s *PhotoService) ToggleFavorite(ctx context.Context, token, photoID string) (favorite bool, err error) {
	defer s.observe("toggle_favorite", &err)

	_, release, err := s.lockAndLoad(ctx, token, photoID)
	if err != nil {
		return false, err
	}
	defer release()

	favorite, err = s.photos.ToggleFavorite(ctx, photoID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, err
		}
		return false, apperror.RecordWriteFailed("failed to toggle favorite", err)
	}
	return favorite, nil
}

// =========================================================================
// HELPERS
// =========================================================================

// reportInconsistency is the loud path for a known cross-store disagreement.
func (s *PhotoService) reportInconsistency(ctx context.Context, appErr *apperror.AppError, photoID, blobID string) {
	s.logger.Error("stores are inconsistent",
		"kind", appErr.Kind,
		"photo_id", photoID,
		"blob_id", blobID,
		"error", appErr.Cause,
	)
	s.metrics.ConsistencyFailure(appErr.Kind)
	s.publish(ctx, events.ConsistencyAlert(appErr.Kind, photoID, blobID, fmt.Sprint(appErr.Cause)))
}

// publish sends an event without letting a broker problem fail the caller.
func (s *PhotoService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("publishing event", "type", event.Type, "error", err)
	}
}

// observe counts the operation by outcome. Called via defer with a pointer
// to the named error result so it sees the final value.
func (s *PhotoService) observe(operation string, errp *error) {
	s.metrics.Operation(operation, outcomeOf(*errp))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case apperror.IsConsistencyFailure(err):
		return metrics.OutcomeCorrupt
	case errors.Is(err, apperror.ErrBlobWrite),
		errors.Is(err, apperror.ErrBlobDelete),
		errors.Is(err, apperror.ErrRecordWrite),
		errors.Is(err, apperror.ErrLockUnavailable),
		errors.Is(err, apperror.ErrInternal):
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeRejected
	}
}

func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}
