package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/govbridge/govchat/internal/models"
)

// MemoryStore implements Store with a mutex-guarded map. Suitable for
// single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by user ID
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func newSession(userID string, now time.Time) *Session {
	return &Session{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		Language:       models.DefaultLanguage,
		State:          StateIdle,
		CreatedAt:      now,
		LastActivityAt: now,
		History:        []Turn{},
		Version:        1,
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, userID string, now time.Time, idleTimeout time.Duration) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[userID]; ok && !existing.ExpiredAt(now, idleTimeout) {
		return cloneSession(existing), false, nil
	}

	// Missing or lazily expired: replace with a fresh session.
	sess := newSession(userID, now)
	m.sessions[userID] = sess
	return cloneSession(sess), true, nil
}

func (m *MemoryStore) Get(ctx context.Context, userID string, now time.Time, idleTimeout time.Duration) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing, ok := m.sessions[userID]
	if !ok || existing.ExpiredAt(now, idleTimeout) {
		return nil, ErrNotFound
	}
	return cloneSession(existing), nil
}

func (m *MemoryStore) Update(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[sess.UserID]
	if !ok || stored.SessionID != sess.SessionID {
		return ErrNotFound
	}
	if stored.Version != sess.Version {
		return ErrConflict
	}

	sess.Version++
	m.sessions[sess.UserID] = cloneSession(sess)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) ExpireIdle(ctx context.Context, now time.Time, idleTimeout, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for userID, sess := range m.sessions {
		if sess.ExpiredAt(now, idleTimeout) || now.Sub(sess.CreatedAt) > maxAge {
			delete(m.sessions, userID)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) ActiveCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = nil
	return nil
}

// cloneSession keeps callers from mutating the stored copy outside
// Update, which would defeat the version check.
func cloneSession(s *Session) *Session {
	cp := *s
	cp.History = append([]Turn(nil), s.History...)
	if s.PendingIntent != nil {
		intent := *s.PendingIntent
		intent.Entities = make(map[string]string, len(s.PendingIntent.Entities))
		for k, v := range s.PendingIntent.Entities {
			intent.Entities[k] = v
		}
		intent.MissingFields = append([]string(nil), s.PendingIntent.MissingFields...)
		cp.PendingIntent = &intent
	}
	return &cp
}
