package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// response shape.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "photo not found with id abc123"}
//
// "error" is the AppError kind, so a client (or an operator grepping logs)
// can tell a partial_delete_failure from a plain internal_error.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/photovault/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error kind (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// MessageResponse is the body of mutations that have nothing else to return.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status go out before the body. Once Encode writes, any later
// header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an AppError to an HTTP status.
//
// The service layer never sees status codes. The same error would map to
// codes.NotFound behind gRPC or to an exit code in photoctl.
//
// Only the AppError's own sentinel decides. Its Cause may itself carry
// ErrNotFound (a rollback that lost a race with a delete), and a
// consistency failure must still answer 500.
func statusFor(appErr *apperror.AppError) int {
	switch appErr.Err {
	case apperror.ErrMissingField,
		apperror.ErrValidation,
		apperror.ErrInvalidContentType,
		apperror.ErrMetadataExtraction:
		return http.StatusBadRequest // 400
	case apperror.ErrInvalidCredentials:
		return http.StatusUnauthorized // 401
	case apperror.ErrForbidden,
		apperror.ErrInvalidToken,
		apperror.ErrExpiredToken,
		apperror.ErrAdminAlreadyExists:
		return http.StatusForbidden // 403
	case apperror.ErrNotFound:
		return http.StatusNotFound // 404
	case apperror.ErrConflict:
		return http.StatusConflict // 409
	case apperror.ErrLockUnavailable:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// errors.As() walks the chain and fills appErr with the first *AppError, so
// a service error wrapped again with fmt.Errorf("...: %w") still maps cleanly.
// The Cause is never sent: it may hold driver messages or file paths.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, statusFor(appErr), ErrorResponse{
			Error:   appErr.Kind,
			Message: appErr.Message,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   apperror.KindInternal,
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst, reporting a malformed body as a
// validation error.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}
