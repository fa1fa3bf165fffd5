package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// Manager wraps a Store with the single-writer-per-key guarantee: all
// mutation for one user funnels through that user's lock, so concurrent
// messages from the same citizen are serialized instead of interleaved.
type Manager struct {
	store       Store
	idleTimeout time.Duration
	maxAge      time.Duration
	historyCap  int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a session manager over the given store.
func NewManager(store Store, idleTimeout, maxAge time.Duration, historyCap int) *Manager {
	return &Manager{
		store:       store,
		idleTimeout: idleTimeout,
		maxAge:      maxAge,
		historyCap:  historyCap,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

// Lock serializes handlers for one user. The returned func releases it.
// Re-validates the lock against the map after acquiring, in case the
// sweeper pruned it between lookup and Lock.
func (m *Manager) Lock(userID string) func() {
	for {
		lock := m.userLock(userID)
		lock.Lock()

		m.mu.Lock()
		current, ok := m.locks[userID]
		if !ok {
			m.locks[userID] = lock
			ok, current = true, lock
		}
		m.mu.Unlock()

		if ok && current == lock {
			return lock.Unlock
		}
		lock.Unlock()
	}
}

// GetOrCreate returns the user's live session, creating one if needed.
func (m *Manager) GetOrCreate(ctx context.Context, userID string, now time.Time) (*Session, bool, error) {
	return m.store.GetOrCreate(ctx, userID, now, m.idleTimeout)
}

// Get returns the user's live session or ErrNotFound.
func (m *Manager) Get(ctx context.Context, userID string, now time.Time) (*Session, error) {
	return m.store.Get(ctx, userID, now, m.idleTimeout)
}

// Update persists a session. A version conflict is retried once against
// a re-fetched copy via the apply func; a second conflict is returned.
func (m *Manager) Update(ctx context.Context, sess *Session, apply func(*Session)) error {
	err := m.store.Update(ctx, sess)
	if err != ErrConflict || apply == nil {
		return err
	}

	fresh, gerr := m.store.Get(ctx, sess.UserID, time.Now(), m.idleTimeout)
	if gerr != nil {
		return gerr
	}
	apply(fresh)
	*sess = *fresh
	return m.store.Update(ctx, sess)
}

// TouchAndBoundHistory appends a turn, trims history to the cap, and
// advances the activity timestamp.
func (m *Manager) TouchAndBoundHistory(sess *Session, turn Turn) {
	sess.AppendTurn(turn, m.historyCap)
	sess.Touch(turn.Timestamp)
}

// Delete destroys the user's session (logout).
func (m *Manager) Delete(ctx context.Context, userID string) error {
	return m.store.Delete(ctx, userID)
}

// ActiveCount reports how many live sessions exist.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	return m.store.ActiveCount(ctx)
}

// RunSweeper removes expired sessions on an interval until ctx is done.
// It also drops user locks for users with no session, so the lock map
// does not grow unboundedly.
func (m *Manager) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			removed, err := m.store.ExpireIdle(sweepCtx, time.Now(), m.idleTimeout, m.maxAge)
			cancel()
			if err != nil {
				log.Printf("WARN: session sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("Session sweep removed %d expired sessions", removed)
			}
			m.pruneLocks(ctx)
		}
	}
}

func (m *Manager) pruneLocks(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, lock := range m.locks {
		if !lock.TryLock() {
			continue // in use
		}
		if _, err := m.store.Get(ctx, userID, time.Now(), m.idleTimeout); err == ErrNotFound {
			delete(m.locks, userID)
		}
		lock.Unlock()
	}
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
