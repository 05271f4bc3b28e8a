// ABOUTME: Identity accounts persisted by the identity service
// ABOUTME: Usernames are unique; passwords are stored only as bcrypt hashes

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var userSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('student', 'faculty')),
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role, username)`,
}

// UserStore owns identity accounts.
type UserStore struct {
	db *DB
}

// NewUserStore creates the users table if needed.
func NewUserStore(ctx context.Context, db *DB) (*UserStore, error) {
	if err := db.applySchema(ctx, userSchema); err != nil {
		return nil, err
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// CreateUser inserts u. Returns ErrUsernameTaken if the name is in use.
func (s *UserStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.db.ExecContext(ctx, s.db.rebind(`
		INSERT INTO users (user_id, username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), u.ID, u.Username, u.PasswordHash, u.Role, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("creating user: %w", classify(err))
	}
	return nil
}

const userColumns = `user_id, username, password_hash, role, created_at`

func scanUser(row rowScanner) (*User, error) {
	var (
		u       User
		created string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &created); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}

// GetUserByUsername looks up an account by its unique username.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.db.db.QueryRowContext(ctx,
		s.db.rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", classify(err))
	}
	return u, nil
}

// ListUsersByRole returns accounts with the given role ordered by username.
func (s *UserStore) ListUsersByRole(ctx context.Context, role string) ([]*User, error) {
	rows, err := s.db.db.QueryContext(ctx,
		s.db.rebind(`SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY username`), role)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", classify(err))
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", classify(err))
	}
	return users, nil
}
