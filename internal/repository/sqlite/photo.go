package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

var _ repository.PhotoRepository = (*PhotoDB)(nil)

// PhotoDB is the photos-table view of DB. Get one with db.Photos().
type PhotoDB struct {
	conn *sql.DB
}

const photoColumns = `id, owner_id, filename, blob_id, content_type, date_taken, size,
	tags, description, is_favorite, make, model, latitude, longitude, width, height,
	full_metadata, uploaded_at`

// Insert stores a new photo record. ID and UploadedAt are assigned here if
// the caller left them empty; UploadedAt is never written again afterwards.
func (p *PhotoDB) Insert(ctx context.Context, photo *model.Photo) error {
	if photo.ID == "" {
		photo.ID = xid.New().String()
	}
	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = time.Now().UTC()
	}
	photo.Tags = model.NormalizeTags(photo.Tags)

	tags, err := json.Marshal(photo.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	// NULLABLE COLUMNS:
	// database/sql turns a nil pointer argument into SQL NULL, but only for
	// plain *T values. The nested optional structs are unpacked by hand.
	var (
		latitude, longitude sql.NullFloat64
		width, height       sql.NullInt64
		fullMetadata        sql.NullString
	)
	meta := photo.ImportantMetadata
	if meta.Location != nil {
		latitude = sql.NullFloat64{Float64: meta.Location.Latitude, Valid: true}
		longitude = sql.NullFloat64{Float64: meta.Location.Longitude, Valid: true}
	}
	if meta.Dimensions != nil {
		width = sql.NullInt64{Int64: int64(meta.Dimensions.Width), Valid: true}
		height = sql.NullInt64{Int64: int64(meta.Dimensions.Height), Valid: true}
	}
	if len(photo.FullMetadata) > 0 {
		fullMetadata = sql.NullString{String: string(photo.FullMetadata), Valid: true}
	}

	_, err = p.conn.ExecContext(ctx,
		`INSERT INTO photos (`+photoColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		photo.ID,
		photo.OwnerID,
		photo.Filename,
		photo.BlobID,
		photo.ContentType,
		unixMillis(photo.DateTaken),
		photo.Size,
		string(tags),
		photo.Description,
		photo.IsFavorite,
		meta.Make,
		meta.Model,
		latitude,
		longitude,
		width,
		height,
		fullMetadata,
		photo.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting photo %s: %w", photo.ID, err)
	}

	return nil
}

func (p *PhotoDB) FindByID(ctx context.Context, id string) (*model.Photo, error) {
	row := p.conn.QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = ?`, id)
	photo, err := scanPhoto(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("photo", id)
		}
		return nil, fmt.Errorf("sqlite: getting photo %s: %w", id, err)
	}
	return photo, nil
}

func (p *PhotoDB) FindByBlobID(ctx context.Context, blobID string) (*model.Photo, error) {
	row := p.conn.QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE blob_id = ?`, blobID)
	photo, err := scanPhoto(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("photo with blob", blobID)
		}
		return nil, fmt.Errorf("sqlite: getting photo by blob %s: %w", blobID, err)
	}
	return photo, nil
}

// FindByFilter builds the WHERE clause from whichever filter fields are set.
//
// DYNAMIC SQL WITHOUT INJECTION:
// Only the clause skeletons ("owner_id = ?") are concatenated; every value
// still travels as a ? parameter.
func (p *PhotoDB) FindByFilter(ctx context.Context, filter repository.PhotoFilter) ([]model.Photo, error) {
	var (
		where []string
		args  []any
	)

	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.TakenFrom != nil {
		where = append(where, "date_taken >= ?")
		args = append(args, filter.TakenFrom.UnixMilli())
	}
	if filter.TakenBefore != nil {
		where = append(where, "date_taken < ?")
		args = append(args, filter.TakenBefore.UnixMilli())
	}
	if len(filter.Tags) > 0 {
		// json_each expands the stored JSON array into rows, one per tag.
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Tags)), ",")
		where = append(where,
			"EXISTS (SELECT 1 FROM json_each(photos.tags) WHERE json_each.value IN ("+placeholders+"))")
		for _, tag := range filter.Tags {
			args = append(args, tag)
		}
	}
	if filter.Favorite != nil {
		where = append(where, "is_favorite = ?")
		args = append(args, *filter.Favorite)
	}

	query := `SELECT ` + photoColumns + ` FROM photos`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY uploaded_at DESC, id DESC"

	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing photos: %w", err)
	}
	defer rows.Close()

	photos := make([]model.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning photo row: %w", err)
		}
		photos = append(photos, *photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating photo rows: %w", err)
	}

	return photos, nil
}

// UpdateFields overwrites only the non-nil fields of update in one statement.
func (p *PhotoDB) UpdateFields(ctx context.Context, id string, update repository.PhotoUpdate) error {
	if update.Empty() {
		return nil
	}

	var (
		set  []string
		args []any
	)
	if update.Filename != nil {
		set = append(set, "filename = ?")
		args = append(args, *update.Filename)
	}
	if update.Tags != nil {
		tags, err := json.Marshal(model.NormalizeTags(*update.Tags))
		if err != nil {
			return fmt.Errorf("sqlite: encoding tags: %w", err)
		}
		set = append(set, "tags = ?")
		args = append(args, string(tags))
	}
	if update.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *update.Description)
	}
	args = append(args, id)

	result, err := p.conn.ExecContext(ctx,
		`UPDATE photos SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating photo %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("photo", id)
	}

	return nil
}

// ToggleFavorite flips the flag in a single statement.
//
// WHY NOT READ, NEGATE, WRITE?
// Two concurrent toggles doing read-negate-write can both read false and
// both write true. "SET is_favorite = NOT is_favorite" is evaluated by
// SQLite under its write lock, so every toggle lands exactly once.
// RETURNING hands back the value this statement produced.
func (p *PhotoDB) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var favorite bool
	err := p.conn.QueryRowContext(ctx,
		`UPDATE photos SET is_favorite = NOT is_favorite WHERE id = ? RETURNING is_favorite`,
		id,
	).Scan(&favorite)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, apperror.NotFound("photo", id)
		}
		return false, fmt.Errorf("sqlite: toggling favorite on %s: %w", id, err)
	}
	return favorite, nil
}

func (p *PhotoDB) DeleteByID(ctx context.Context, id string) error {
	result, err := p.conn.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting photo %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("photo", id)
	}

	return nil
}

func (p *PhotoDB) ReferencesBlob(ctx context.Context, blobID string) (bool, error) {
	var exists bool
	err := p.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM photos WHERE blob_id = ?)`, blobID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking references to blob %s: %w", blobID, err)
	}
	return exists, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (*model.Photo, error) {
	var (
		photo               model.Photo
		dateTaken, size     sql.NullInt64
		tags                string
		description         sql.NullString
		camMake, camModel   sql.NullString
		latitude, longitude sql.NullFloat64
		width, height       sql.NullInt64
		fullMetadata        sql.NullString
	)

	err := row.Scan(
		&photo.ID,
		&photo.OwnerID,
		&photo.Filename,
		&photo.BlobID,
		&photo.ContentType,
		&dateTaken,
		&size,
		&tags,
		&description,
		&photo.IsFavorite,
		&camMake,
		&camModel,
		&latitude,
		&longitude,
		&width,
		&height,
		&fullMetadata,
		&photo.UploadedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &photo.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if photo.Tags == nil {
		photo.Tags = []string{}
	}

	if dateTaken.Valid {
		t := time.UnixMilli(dateTaken.Int64).UTC()
		photo.DateTaken = &t
	}
	if size.Valid {
		photo.Size = &size.Int64
	}
	if description.Valid {
		photo.Description = &description.String
	}
	if camMake.Valid {
		photo.ImportantMetadata.Make = &camMake.String
	}
	if camModel.Valid {
		photo.ImportantMetadata.Model = &camModel.String
	}
	if latitude.Valid && longitude.Valid {
		photo.ImportantMetadata.Location = &model.Location{
			Latitude:  latitude.Float64,
			Longitude: longitude.Float64,
		}
	}
	if width.Valid && height.Valid {
		photo.ImportantMetadata.Dimensions = &model.Dimensions{
			Width:  int(width.Int64),
			Height: int(height.Int64),
		}
	}
	if fullMetadata.Valid {
		photo.FullMetadata = json.RawMessage(fullMetadata.String)
	}
	photo.UploadedAt = photo.UploadedAt.UTC()

	return &photo, nil
}

// unixMillis converts an optional time to an optional integer column value.
func unixMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
