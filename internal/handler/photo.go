package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/service"
)

// PhotoCoordinator is the slice of service.PhotoService the HTTP layer uses.
// Handlers depend on this interface so tests can swap in a fake without
// standing up two stores.
type PhotoCoordinator interface {
	Ingest(ctx context.Context, ownerID string, data []byte, displayName, contentType string) (*model.Photo, error)
	List(ctx context.Context, callerID string, q service.PhotoQuery) ([]model.Photo, error)
	Get(ctx context.Context, token, photoID string) (*model.Photo, error)
	Open(ctx context.Context, token, blobID string) (*model.Photo, io.ReadCloser, error)
	Delete(ctx context.Context, token, photoID string) error
	Rename(ctx context.Context, token, photoID, newFilename string) (*model.Photo, error)
	UpdateMetadata(ctx context.Context, token, photoID string, update service.MetadataUpdate) (*service.MetadataResult, error)
	ToggleFavorite(ctx context.Context, token, photoID string) (bool, error)
}

// PhotoHandler exposes the photo coordinator over HTTP.
//
// Every route sits behind auth.RequireAuth, so the handlers read the
// subject and the raw token from the context. The raw token is passed down
// unchanged: the coordinator re-verifies it as part of the ownership check.
type PhotoHandler struct {
	photos         PhotoCoordinator
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewPhotoHandler(photos PhotoCoordinator, maxUploadBytes int64, logger *slog.Logger) *PhotoHandler {
	return &PhotoHandler{
		photos:         photos,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

type uploadResponse struct {
	Message string       `json:"message"`
	Photo   *model.Photo `json:"photo"`
}

type renameRequest struct {
	NewFilename string `json:"newFilename"`
}

type renameResponse struct {
	Message     string `json:"message"`
	ID          string `json:"id"`
	NewFilename string `json:"newFilename"`
}

type metadataRequest struct {
	Tags        *[]string `json:"tags"`
	Description *string   `json:"description"`
}

type metadataResponse struct {
	Message     string    `json:"message"`
	ID          string    `json:"id"`
	Tags        *[]string `json:"tags,omitempty"`
	Description *string   `json:"description,omitempty"`
}

type favoriteResponse struct {
	Message    string `json:"message"`
	ID         string `json:"id"`
	IsFavorite bool   `json:"isFavorite"`
}

// HandleUpload stores a new photo for the caller.
//
// HTTP: POST /photos/upload  (multipart/form-data, file field "photo")
//
// An optional "filename" form field overrides the uploaded file's name.
// The body is capped with http.MaxBytesReader before parsing so an
// oversized upload fails fast instead of filling the disk.
func (h *PhotoHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperror.ValidationFailed("photo",
				fmt.Sprintf("file exceeds the %d byte upload limit", h.maxUploadBytes)))
			return
		}
		writeError(w, apperror.ValidationFailed("photo", "request must be multipart/form-data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, apperror.MissingField("photo"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("reading upload", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("photo", "could not read uploaded file"))
		return
	}

	displayName := strings.TrimSpace(r.FormValue("filename"))
	if displayName == "" {
		displayName = header.Filename
	}

	photo, err := h.photos.Ingest(r.Context(), userID, data, displayName, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Message: "Photo uploaded successfully", Photo: photo})
}

// HandleList returns the caller's photos.
//
// HTTP: GET /photos?userId=&dateTaken=&tags=&isFavorite=
func (h *PhotoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	photos, err := h.photos.List(r.Context(), userID, service.PhotoQuery{
		UserID:     q.Get("userId"),
		DateTaken:  q.Get("dateTaken"),
		Tags:       q.Get("tags"),
		IsFavorite: q.Get("isFavorite"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if photos == nil {
		photos = []model.Photo{} // encode as [] rather than null
	}
	writeJSON(w, http.StatusOK, photos)
}

// HandleGet returns one photo record.
//
// HTTP: GET /photos/{id}
func (h *PhotoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	photo, err := h.photos.Get(r.Context(), auth.TokenFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

// HandleDownload streams the image bytes as an attachment.
//
// HTTP: GET /photos/download/{blobID}
func (h *PhotoHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	blobID := chi.URLParam(r, "blobID")

	photo, rc, err := h.photos.Open(r.Context(), auth.TokenFromContext(r.Context()), blobID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": attachmentName(photo)}))
	w.WriteHeader(http.StatusOK)

	// Once the first byte is out the status is fixed; a copy error can only be logged.
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("streaming photo",
			slog.String("blob_id", blobID),
			slog.String("error", err.Error()),
		)
	}
}

// attachmentName appends the content subtype as an extension when the
// stored filename has none: "beach" with image/png downloads as "beach.png".
func attachmentName(photo *model.Photo) string {
	name := photo.Filename
	if path.Ext(name) != "" {
		return name
	}
	mediaType, _, err := mime.ParseMediaType(photo.ContentType)
	if err != nil {
		return name
	}
	_, subtype, ok := strings.Cut(mediaType, "/")
	if !ok || subtype == "" {
		return name
	}
	return name + "." + subtype
}

// HandleDelete removes a photo from both stores.
//
// HTTP: DELETE /photos/{id}   (also DELETE /photos/delete/{id})
func (h *PhotoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.photos.Delete(r.Context(), auth.TokenFromContext(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Photo deleted successfully: " + id})
}

// HandleRename changes a photo's display name.
//
// HTTP: PATCH /photos/rename/{id}  body: {"newFilename": "..."}
func (h *PhotoHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	photo, err := h.photos.Rename(r.Context(), auth.TokenFromContext(r.Context()), id, req.NewFilename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renameResponse{
		Message:     "Photo renamed successfully",
		ID:          id,
		NewFilename: photo.Filename,
	})
}

// HandleUpdateMetadata replaces tags and/or description.
//
// HTTP: PATCH /photos/updateMetadata/{id}  body: {"tags": [...], "description": "..."}
//
// A partial failure still answers with the error; the log carries which
// half landed.
func (h *PhotoHandler) HandleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req metadataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.photos.UpdateMetadata(r.Context(), auth.TokenFromContext(r.Context()), id, service.MetadataUpdate{
		Tags:        req.Tags,
		Description: req.Description,
	})
	if err != nil {
		if result != nil && (result.TagsUpdated || result.DescriptionUpdated) {
			h.logger.Warn("metadata partially updated",
				slog.String("photo_id", id),
				slog.Bool("tags_updated", result.TagsUpdated),
				slog.Bool("description_updated", result.DescriptionUpdated),
			)
		}
		writeError(w, err)
		return
	}

	resp := metadataResponse{Message: "Metadata updated successfully", ID: id}
	if result.TagsUpdated {
		resp.Tags = &result.Photo.Tags
	}
	if result.DescriptionUpdated {
		resp.Description = result.Photo.Description
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleToggleFavorite flips the favorite flag.
//
// HTTP: PATCH /photos/toggleFavorite/{id}
func (h *PhotoHandler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	favorite, err := h.photos.ToggleFavorite(r.Context(), auth.TokenFromContext(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteResponse{
		Message:    "Photo favorite status toggled successfully",
		ID:         id,
		IsFavorite: favorite,
	})
}
