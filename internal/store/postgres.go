package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS user_state (
		user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		state JSONB NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new account record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash, displayName string) (*models.Account, error) {
	account := &models.Account{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, username, password_hash, display_name, created_at, updated_at
	`, username, passwordHash, displayName).Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.DisplayName,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetUserByName retrieves an account by username.
func (s *PostgresStore) GetUserByName(ctx context.Context, username string) (*models.Account, error) {
	account := &models.Account{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, display_name, created_at, updated_at
		FROM users WHERE username = $1
	`, username).Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.DisplayName,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// CountUsers returns the total number of registered accounts.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// SaveState upserts the user's state document.
func (s *PostgresStore) SaveState(ctx context.Context, userID uuid.UUID, st *models.State) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_state (user_id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = NOW()
	`, userID, blob)
	return err
}

// LoadState retrieves the user's state document.
func (s *PostgresStore) LoadState(ctx context.Context, userID uuid.UUID) (*models.State, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state FROM user_state WHERE user_id = $1
	`, userID).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	st := &models.State{}
	if err := json.Unmarshal(blob, st); err != nil {
		return nil, err
	}
	return st, nil
}
