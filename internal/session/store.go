package session

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	// ErrNotFound means the session does not exist (or has expired and
	// been treated as gone).
	ErrNotFound = errors.New("session not found")

	// ErrConflict means the session changed underneath the caller since
	// it was read. Callers re-fetch and retry.
	ErrConflict = errors.New("session version conflict")
)

// Store defines the interface for session storage.
// This allows swapping between Redis, in-memory, etc.
type Store interface {
	// GetOrCreate returns the live session for a user, creating one
	// atomically if none exists or the existing one has passed the
	// idle timeout. Concurrent calls for the same user must not create
	// duplicate sessions. The bool reports whether a session was created.
	GetOrCreate(ctx context.Context, userID string, now time.Time, idleTimeout time.Duration) (*Session, bool, error)

	// Get retrieves a session by user ID without creating one.
	// Returns ErrNotFound for missing or expired sessions.
	Get(ctx context.Context, userID string, now time.Time, idleTimeout time.Duration) (*Session, error)

	// Update persists a mutated session with optimistic locking.
	// Returns ErrConflict if the stored version differs, ErrNotFound
	// if the session was removed in the meantime.
	Update(ctx context.Context, sess *Session) error

	// Delete removes a session (logout).
	Delete(ctx context.Context, userID string) error

	// ExpireIdle removes sessions idle beyond idleTimeout or older than
	// maxAge, returning how many were removed. Run by the background
	// sweep, never on the request path.
	ExpireIdle(ctx context.Context, now time.Time, idleTimeout, maxAge time.Duration) (int, error)

	// ActiveCount reports how many live sessions exist.
	ActiveCount(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
