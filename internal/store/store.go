package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
)

// DataStore defines the interface for persistent storage of accounts and
// per-user client state. Both PostgresStore and SQLiteStore implement this
// interface. Lookups return (nil, nil) when the record does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Account operations
	CreateUser(ctx context.Context, username, passwordHash, displayName string) (*models.Account, error)
	GetUserByName(ctx context.Context, username string) (*models.Account, error)
	CountUsers(ctx context.Context) (int64, error)

	// State operations. The state document is stored whole: contacts,
	// personas and message history change together, and the write path is a
	// single sequential consumer.
	SaveState(ctx context.Context, userID uuid.UUID, st *models.State) error
	LoadState(ctx context.Context, userID uuid.UUID) (*models.State, error)
}
