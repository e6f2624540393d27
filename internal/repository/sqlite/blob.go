package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/photovault/internal/blobstore"
)

var _ blobstore.Store = (*BlobDB)(nil)

// BlobDB stores image bytes in the blobs table. Get one with db.Blobs().
//
// Photos are read whole into memory on upload anyway (EXIF extraction needs
// the full byte slice), so a BLOB column is a natural fit for small
// deployments. Large libraries should use GridFS or MinIO instead.
type BlobDB struct {
	conn *sql.DB
}

func (b *BlobDB) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	id := xid.New().String()

	_, err := b.conn.ExecContext(ctx,
		`INSERT INTO blobs (id, name, content_type, size, data, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, contentType, len(data), data, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: storing blob %q: %w", name, err)
	}
	return id, nil
}

// Get returns the blob's bytes wrapped in a ReadCloser, matching the
// streaming backends.
func (b *BlobDB) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	var data []byte
	err := b.conn.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlite: blob %s: %w", id, blobstore.ErrNotFound)
		}
		return nil, fmt.Errorf("sqlite: reading blob %s: %w", id, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *BlobDB) Delete(ctx context.Context, id string) error {
	return b.execOne(ctx, "deleting", id, `DELETE FROM blobs WHERE id = ?`, id)
}

func (b *BlobDB) Rename(ctx context.Context, id, newName string) error {
	return b.execOne(ctx, "renaming", id, `UPDATE blobs SET name = ? WHERE id = ?`, newName, id)
}

func (b *BlobDB) Stat(ctx context.Context, id string) (*blobstore.Info, error) {
	var info blobstore.Info
	err := b.conn.QueryRowContext(ctx,
		`SELECT id, name, content_type, size, uploaded_at FROM blobs WHERE id = ?`, id,
	).Scan(&info.ID, &info.Name, &info.ContentType, &info.Size, &info.UploadedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlite: blob %s: %w", id, blobstore.ErrNotFound)
		}
		return nil, fmt.Errorf("sqlite: stat blob %s: %w", id, err)
	}
	info.UploadedAt = info.UploadedAt.UTC()
	return &info, nil
}

// List reads every blob header first and only then calls fn.
//
// The rows are fully drained and closed before fn runs because fn usually
// queries the photos table, and an in-memory database has exactly one
// connection: holding rows open while fn queries would deadlock.
func (b *BlobDB) List(ctx context.Context, fn func(blobstore.Info) error) error {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT id, name, content_type, size, uploaded_at FROM blobs ORDER BY uploaded_at`)
	if err != nil {
		return fmt.Errorf("sqlite: listing blobs: %w", err)
	}

	var infos []blobstore.Info
	for rows.Next() {
		var info blobstore.Info
		if err := rows.Scan(&info.ID, &info.Name, &info.ContentType, &info.Size, &info.UploadedAt); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scanning blob row: %w", err)
		}
		info.UploadedAt = info.UploadedAt.UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("sqlite: iterating blob rows: %w", err)
	}
	rows.Close()

	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// execOne runs a single-row statement and maps "no row touched" to ErrNotFound.
func (b *BlobDB) execOne(ctx context.Context, verb, id, query string, args ...any) error {
	result, err := b.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s blob %s: %w", verb, id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sqlite: blob %s: %w", id, blobstore.ErrNotFound)
	}
	return nil
}
