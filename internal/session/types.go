package session

import (
	"strings"
	"time"

	"github.com/govbridge/govchat/internal/models"
)

// State is the conversation state machine position for a session.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingInput State = "awaiting_input"
	StateProcessing    State = "processing"
	StateCompleted     State = "completed"
)

// Turn is one prior exchange in a conversation.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds all conversational state for one citizen. It is
// persisted as a unit; Version backs optimistic locking so that
// concurrent writers cannot silently overwrite each other.
type Session struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Language  models.Language `json:"language"`
	State     State           `json:"state"`

	// PendingIntent is set while the conversation is collecting
	// entities; AwaitingField names the entity the next message fills.
	PendingIntent *models.Intent `json:"pending_intent,omitempty"`
	AwaitingField string         `json:"awaiting_field,omitempty"`

	// ActiveRequestID ties the session to an in-flight ServiceRequest.
	// CancelledRequestID marks a request whose late result must be
	// discarded rather than delivered.
	ActiveRequestID    string `json:"active_request_id,omitempty"`
	CancelledRequestID string `json:"cancelled_request_id,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	History        []Turn    `json:"history"`
	Version        int64     `json:"version"`
}

// ExpiredAt reports whether the session is past the idle timeout at the
// given instant. Expired sessions are treated as gone even before the
// background sweep physically removes them.
func (s *Session) ExpiredAt(now time.Time, idleTimeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > idleTimeout
}

// Touch advances the activity timestamp, never moving it backwards.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
}

// AppendTurn records a turn, evicting the oldest once the cap is hit.
func (s *Session) AppendTurn(turn Turn, cap int) {
	s.History = append(s.History, turn)
	if cap > 0 && len(s.History) > cap {
		s.History = s.History[len(s.History)-cap:]
	}
}

// Reset returns the session to idle, clearing any pending intent.
func (s *Session) Reset() {
	s.State = StateIdle
	s.PendingIntent = nil
	s.AwaitingField = ""
	s.ActiveRequestID = ""
}

// NormalizeUserID canonicalizes a phone-number user identifier to the
// +256... international form so one citizen never maps to two sessions.
func NormalizeUserID(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case strings.HasPrefix(cleaned, "256"):
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "0") && len(cleaned) > 1:
		return "+256" + cleaned[1:]
	default:
		return cleaned
	}
}
