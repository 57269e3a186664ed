package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Store persists user profiles, conflict events and previous-ticket records.
// Implementations must be safe for concurrent use: the reconciler, the
// dispatch loop and every live session worker share one Store.
type Store interface {
	// GetOrCreateUser returns the profile for username, creating a default
	// inactive one if none exists yet.
	GetOrCreateUser(ctx context.Context, username string) (User, error)
	SaveUser(ctx context.Context, user User) error
	ListUsers(ctx context.Context) ([]User, error)
	// ListActiveUsers returns only users who opted in to being watched.
	ListActiveUsers(ctx context.Context) ([]User, error)

	// CreateConflict records a new active conflict for the user.
	CreateConflict(ctx context.Context, username string, kind ConflictKind, ticketKeys []string) (Conflict, error)
	// ActiveConflicts returns the user's currently active conflicts, oldest
	// first.
	ActiveConflicts(ctx context.Context, username string) ([]Conflict, error)
	DeactivateConflict(ctx context.Context, conflictID string) error
	// DeactivateUserConflicts deactivates every active conflict of the user.
	DeactivateUserConflicts(ctx context.Context, username string) error

	UpsertPrevTicket(ctx context.Context, username, ticketKey string) error
	GetPrevTicket(ctx context.Context, username string) (PrevTicket, error)

	Close() error
}
