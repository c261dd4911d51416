package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/sumday/internal/apperror"
	"github.com/sakif/sumday/internal/model"
	"github.com/sakif/sumday/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, auth0_id, email, first_name, last_name, timezone,
	is_administrator, is_active, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Auth0ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.Timezone,
		&u.IsAdministrator,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// conflictError turns a unique violation into the apperror the service layer
// shows to the user. Other errors pass through unchanged.
func conflictError(err error) error {
	column, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	switch column {
	case "email":
		return apperror.Conflict("email", "An account with this email address already exists.")
	default:
		return apperror.Conflict("auth0_id", "An account for this login already exists.")
	}
}

// Create inserts a new user. ID and both timestamps are filled in on the
// caller's struct.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	if user.Timezone == "" {
		user.Timezone = model.DefaultTimezone
	}
	now := db.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	// RETURNING works on both SQLite (3.35+) and PostgreSQL, so we don't need
	// LastInsertId, which pgx doesn't support.
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`INSERT INTO users (auth0_id, email, first_name, last_name, timezone,
			is_administrator, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		user.Auth0ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Timezone,
		user.IsAdministrator,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("sqldb: inserting user (subject=%s): %w", user.Auth0ID, conflictError(err))
	}
	return nil
}

// GetByID retrieves a user by primary key.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqldb: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetBySubject retrieves a user by the identity provider's subject claim.
func (db *DB) GetBySubject(ctx context.Context, subject string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+userColumns+` FROM users WHERE auth0_id = ?`), subject))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", subject)
		}
		return nil, fmt.Errorf("sqldb: getting user by subject %s: %w", subject, err)
	}
	return u, nil
}

// List returns all users, most recently created first. The id tiebreak keeps
// the order stable for rows created within the same clock tick.
func (db *DB) List(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating user rows: %w", err)
	}
	return users, nil
}

// Update runs a read-modify-write of one user inside a transaction.
//
// mutate receives the current row and may change any profile field or flag.
// ID, Auth0ID and CreatedAt are never written back. If mutate returns an
// error the transaction is rolled back and that error is returned as-is, so
// validation failures leave the row exactly as it was.
func (db *DB) Update(ctx context.Context, id int64, mutate func(*model.User) error) (*model.User, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqldb: beginning update of user %d: %w", id, err)
	}
	// Rollback after Commit is a no-op, so this is safe on every path.
	defer tx.Rollback()

	// PostgreSQL takes a row lock so two admins flipping the same flag queue
	// up. SQLite already serialises writers on the database lock.
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	if db.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}

	u, err := scanUser(tx.QueryRowContext(ctx, db.rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqldb: loading user %d for update: %w", id, err)
	}

	if err := mutate(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = db.now().UTC()

	_, err = tx.ExecContext(ctx, db.rebind(
		`UPDATE users SET email = ?, first_name = ?, last_name = ?, timezone = ?,
			is_administrator = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`),
		u.Email,
		u.FirstName,
		u.LastName,
		u.Timezone,
		u.IsAdministrator,
		u.IsActive,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: updating user %d: %w", id, conflictError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqldb: committing update of user %d: %w", id, err)
	}
	return u, nil
}

// Delete removes a user permanently and returns the deleted row.
func (db *DB) Delete(ctx context.Context, id int64) (*model.User, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqldb: beginning delete of user %d: %w", id, err)
	}
	defer tx.Rollback()

	u, err := scanUser(tx.QueryRowContext(ctx, db.rebind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqldb: loading user %d for delete: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM users WHERE id = ?`), id); err != nil {
		return nil, fmt.Errorf("sqldb: deleting user %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqldb: committing delete of user %d: %w", id, err)
	}
	return u, nil
}
