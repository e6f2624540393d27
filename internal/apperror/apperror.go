// Package apperror defines the error taxonomy shared by every layer of photovault.
//
// HOW THE TAXONOMY WORKS:
// Every failure the service layer reports is an *AppError. It carries:
//   - Err:     a sentinel (ErrNotFound, ErrBlobDelete, ...) so callers can use errors.Is
//   - Kind:    a short machine-readable string ("not_found", "partial_delete_failure")
//   - Message: a human-readable sentence that is safe to show to clients
//   - Cause:   the underlying driver/store error, logged server-side, never returned
//
// The HTTP layer maps sentinels to status codes (see handler/response.go).
// Cross-store consistency failures (PartialDeleteFailure, RollbackFailed) have their
// own kinds so they never collapse into a generic "internal_error" in the logs.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinels. Grouped by how the caller is expected to react.
var (
	// Input errors: reported directly, no retry, no state change.
	ErrMissingField       = errors.New("missing field")
	ErrValidation         = errors.New("Validation Error")
	ErrInvalidContentType = errors.New("invalid content type")
	ErrNotFound           = errors.New("not found")

	// Authorization errors: fail closed, checked before any mutation.
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("expired token")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Conflicts on unique user fields and the bootstrap path.
	ErrConflict           = errors.New("conflict")
	ErrAdminAlreadyExists = errors.New("admin already exists")

	// Store-transient errors: surfaced as server errors, no automatic retry.
	ErrBlobWrite          = errors.New("blob write failed")
	ErrBlobDelete         = errors.New("blob delete failed")
	ErrRecordWrite        = errors.New("record write failed")
	ErrMetadataExtraction = errors.New("metadata extraction failed")
	ErrLockUnavailable    = errors.New("lock unavailable")
	ErrInternal           = errors.New("internal error")

	// Cross-store consistency errors: the two stores disagree, operator attention needed.
	ErrPartialDelete  = errors.New("partial delete failure")
	ErrRollbackFailed = errors.New("rollback failed")
)

// Kind strings returned to clients in the "error" field of every error response.
const (
	KindMissingField             = "missing_field"
	KindValidation               = "validation_error"
	KindInvalidContentType       = "invalid_content_type"
	KindNotFound                 = "not_found"
	KindUnauthorized             = "unauthorized"
	KindInvalidToken             = "invalid_token"
	KindExpiredToken             = "expired_token"
	KindInvalidCredentials       = "invalid_credentials"
	KindConflict                 = "conflict"
	KindAdminAlreadyExists       = "admin_already_exists"
	KindBlobWriteFailed          = "blob_write_failed"
	KindBlobDeleteFailed         = "blob_delete_failed"
	KindRecordWriteFailed        = "record_write_failed"
	KindMetadataExtractionFailed = "metadata_extraction_failed"
	KindLockUnavailable          = "lock_unavailable"
	KindPartialDeleteFailure     = "partial_delete_failure"
	KindRollbackFailed           = "rollback_failed"
	KindInternal                 = "internal_error"
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Kind    string // machine-readable kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying store/driver error (server-side only)
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// ErrBlobDelete as well as, say, a driver's context.DeadlineExceeded.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// KindOf returns the kind of the first AppError in err's chain, or
// KindInternal when err carries no AppError.
func KindOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsConsistencyFailure reports whether err means the blob store and the
// metadata store are known to disagree.
func IsConsistencyFailure(err error) bool {
	return errors.Is(err, ErrPartialDelete) || errors.Is(err, ErrRollbackFailed)
}

func MissingField(field string) *AppError {
	return &AppError{
		Err:     ErrMissingField,
		Kind:    KindMissingField,
		Message: fmt.Sprintf("%s is required", field),
		Field:   field,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Kind:    KindValidation,
		Message: message,
		Field:   field,
	}
}

func InvalidContentType(contentType string) *AppError {
	return &AppError{
		Err:     ErrInvalidContentType,
		Kind:    KindInvalidContentType,
		Message: fmt.Sprintf("content type %q is not an image", contentType),
		Field:   "contentType",
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Kind:    KindUnauthorized,
		Message: message,
	}
}

// Unauthorized is the ownership-check failure: the token is valid but its
// subject does not own the resource.
func Unauthorized(resource, id string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Kind:    KindUnauthorized,
		Message: fmt.Sprintf("not authorized to modify %s %s", resource, id),
	}
}

func InvalidToken(cause error) *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Kind:    KindInvalidToken,
		Message: "invalid authentication token",
		Cause:   cause,
	}
}

func ExpiredToken(cause error) *AppError {
	return &AppError{
		Err:     ErrExpiredToken,
		Kind:    KindExpiredToken,
		Message: "authentication token has expired",
		Cause:   cause,
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Kind:    KindInvalidCredentials,
		Message: "invalid email or password",
	}
}

func Conflict(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Kind:    KindConflict,
		Message: fmt.Sprintf("%s with this %s already exists", resource, field),
		Field:   field,
	}
}

func AdminAlreadyExists() *AppError {
	return &AppError{
		Err:     ErrAdminAlreadyExists,
		Kind:    KindAdminAlreadyExists,
		Message: "an admin user already exists",
	}
}

func BlobWriteFailed(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrBlobWrite,
		Kind:    KindBlobWriteFailed,
		Message: message,
		Cause:   cause,
	}
}

func BlobDeleteFailed(blobID string, cause error) *AppError {
	return &AppError{
		Err:     ErrBlobDelete,
		Kind:    KindBlobDeleteFailed,
		Message: fmt.Sprintf("failed to delete blob %s", blobID),
		Cause:   cause,
	}
}

func RecordWriteFailed(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrRecordWrite,
		Kind:    KindRecordWriteFailed,
		Message: message,
		Cause:   cause,
	}
}

func MetadataExtractionFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrMetadataExtraction,
		Kind:    KindMetadataExtractionFailed,
		Message: "could not read image metadata",
		Cause:   cause,
	}
}

func LockUnavailable(key string, cause error) *AppError {
	return &AppError{
		Err:     ErrLockUnavailable,
		Kind:    KindLockUnavailable,
		Message: fmt.Sprintf("%s is busy, try again", key),
		Cause:   cause,
	}
}

// PartialDeleteFailure: the blob is gone but the record still references it.
func PartialDeleteFailure(photoID, blobID string, cause error) *AppError {
	return &AppError{
		Err:     ErrPartialDelete,
		Kind:    KindPartialDeleteFailure,
		Message: fmt.Sprintf("photo %s lost its blob %s but the record could not be deleted", photoID, blobID),
		Cause:   cause,
	}
}

// RollbackFailed: a compensating action did not restore the previous state.
func RollbackFailed(photoID string, cause error) *AppError {
	return &AppError{
		Err:     ErrRollbackFailed,
		Kind:    KindRollbackFailed,
		Message: fmt.Sprintf("photo %s is inconsistent: rollback after a failed rename did not complete", photoID),
		Cause:   cause,
	}
}

func Internal(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Kind:    KindInternal,
		Message: message,
		Cause:   cause,
	}
}
