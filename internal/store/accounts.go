package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/najdbe/internal/model"
)

// Accounts keeps local user accounts, revoked tokens and the token signing
// key. It always lives in SQLite, whichever backend holds the reports.
type Accounts struct {
	db  *sql.DB
	now func() time.Time
}

// NewAccounts wraps an open database with the schema applied.
func NewAccounts(db *sql.DB, opts ...Option) *Accounts {
	o := newOptions(opts)
	return &Accounts{db: db, now: o.now}
}

const userColumns = `id, username, name, password_hash, role, created_at, deleted_at`

func scanUser(row scanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser adds an account. A taken username fails with model.ErrConflict.
func (a *Accounts) CreateUser(ctx context.Context, username, name, passwordHash, role string) (*model.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", model.ErrValidation)
	}
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", model.ErrValidation, role)
	}

	res, err := a.db.ExecContext(ctx,
		`INSERT INTO users (username, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		username, name, passwordHash, role, a.now().UTC(),
	)
	if isConstraintError(err) {
		return nil, fmt.Errorf("%w: username %q is taken", model.ErrConflict, username)
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}
	return a.User(ctx, id)
}

// User returns an account by id, including deleted ones.
func (a *Accounts) User(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(a.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// UserByUsername returns the active account with username.
func (a *Accounts) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(a.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", model.ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// Users lists active accounts in creation order.
func (a *Accounts) Users(ctx context.Context) ([]model.User, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountUsers counts active accounts.
func (a *Accounts) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// SetPassword replaces the password hash of an active account.
func (a *Accounts) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return requireRow(res, id)
}

// DeleteUser soft-deletes an account; its username becomes free again.
func (a *Accounts) DeleteUser(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		a.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking user update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, id)
	}
	return nil
}

// Revoke records a token id as unusable until it would have expired anyway.
func (a *Accounts) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	// Expired revocations can never match again.
	_, _ = a.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, a.now().UTC())
	return nil
}

// Revoked reports whether a token id has been revoked.
func (a *Accounts) Revoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return n > 0, nil
}

// SigningKey returns the token signing key, creating it on first use. Racing
// callers all read back the single stored value.
func (a *Accounts) SigningKey(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES ('signing_key', ?)`,
		hex.EncodeToString(buf),
	)
	if err != nil {
		return nil, fmt.Errorf("storing signing key: %w", err)
	}

	var stored string
	err = a.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'signing_key'`).Scan(&stored)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	return hex.DecodeString(stored)
}
