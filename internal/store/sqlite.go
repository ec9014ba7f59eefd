package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/polychat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/polychat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_state (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		state TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new account record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash, displayName string) (*models.Account, error) {
	id := uuid.New().String()
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, username, passwordHash, displayName, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByName(ctx, username)
}

// GetUserByName retrieves an account by username.
func (s *SQLiteStore) GetUserByName(ctx context.Context, username string) (*models.Account, error) {
	account := &models.Account{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, display_name, created_at, updated_at
		FROM users WHERE username = ?
	`, username).Scan(
		&idStr,
		&account.Username,
		&account.PasswordHash,
		&account.DisplayName,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	account.ID = uuid.MustParse(idStr)
	return account, nil
}

// CountUsers returns the total number of registered accounts.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// SaveState upserts the user's state document.
func (s *SQLiteStore) SaveState(ctx context.Context, userID uuid.UUID, st *models.State) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_state (user_id, state, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE
		SET state = excluded.state, updated_at = CURRENT_TIMESTAMP
	`, userID.String(), string(blob))
	return err
}

// LoadState retrieves the user's state document.
func (s *SQLiteStore) LoadState(ctx context.Context, userID uuid.UUID) (*models.State, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM user_state WHERE user_id = ?
	`, userID.String()).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	st := &models.State{}
	if err := json.Unmarshal([]byte(blob), st); err != nil {
		return nil, err
	}
	return st, nil
}
