package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users-table view of DB. Get one with db.Users().
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, name, email, username, password_hash, created_at`

// Insert creates a user, assigning ID and CreatedAt in place.
// A duplicate email or username comes back as apperror.ErrConflict.
func (u *UserDB) Insert(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolation(err, "users", "email", "username"); ok {
			return apperror.Conflict("user", field)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}

	return nil
}

func (u *UserDB) FindByID(ctx context.Context, id string) (*model.User, error) {
	return u.findOne(ctx, "id", id)
}

func (u *UserDB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.findOne(ctx, "email", email)
}

func (u *UserDB) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.findOne(ctx, "username", username)
}

// findOne looks a user up by a single column. column is always one of our
// own constants, never user input, so formatting it into the SQL is safe.
func (u *UserDB) findOne(ctx context.Context, column, value string) (*model.User, error) {
	var user model.User

	err := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}

	return &user, nil
}

// DeleteByUsername removes the user. Their photos are NOT cascaded.
func (u *UserDB) DeleteByUsername(ctx context.Context, username string) error {
	result, err := u.conn.ExecContext(ctx,
		`DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", username, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", username)
	}

	return nil
}

func (u *UserDB) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := u.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}
