// Package breaker implements per-service circuit breaking so a failing
// government portal stops receiving automation calls for a cool-down
// period instead of dragging every request through retries.
package breaker

import (
	"sync"
	"time"

	"github.com/govbridge/govchat/internal/models"
)

// State of a circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker guards one service. Failures within the trailing window trip
// it open; after the cool-down one probe request is let through.
type Breaker struct {
	mu sync.Mutex

	service   models.Service
	threshold int
	window    time.Duration
	cooldown  time.Duration

	state       State
	failures    []time.Time
	openedAt    time.Time
	probing     bool
	maintenance bool

	now func() time.Time
}

// New creates a closed breaker. threshold is the number of failures in
// the trailing window that trips it.
func New(service models.Service, threshold int, window, cooldown time.Duration) *Breaker {
	return &Breaker{
		service:   service,
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		state:     StateClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. In half-open state only a
// single probe is admitted until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maintenance {
		return false
	}

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probing {
			return false // a probe is already in flight
		}
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess resets the breaker after a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = b.failures[:0]
	b.probing = false
}

// ReleaseProbe frees an admitted half-open probe slot without recording
// an outcome, for callers that ended up not making a live call.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// RecordFailure notes a failed call; enough failures inside the window
// trip the breaker, and a failed half-open probe reopens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
		return
	}

	b.failures = append(b.failures, now)
	b.trimLocked(now)

	if b.state == StateClosed && len(b.failures) >= b.threshold {
		b.state = StateOpen
		b.openedAt = now
	}
}

func (b *Breaker) trimLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

// State returns the current state; maintenance mode reads as open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maintenance {
		return StateOpen
	}
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// SetMaintenance pins the breaker open (true) or releases it (false).
func (b *Breaker) SetMaintenance(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maintenance = on
	if !on {
		// Leaving maintenance starts from a clean closed state.
		b.state = StateClosed
		b.failures = b.failures[:0]
		b.probing = false
	}
}

// Maintenance reports whether maintenance mode is on.
func (b *Breaker) Maintenance() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maintenance
}

// Snapshot is the admin view of a breaker.
type Snapshot struct {
	Service      models.Service `json:"service"`
	State        State          `json:"state"`
	FailureCount int            `json:"failure_count"`
	OpenedAt     *time.Time     `json:"opened_at,omitempty"`
	Maintenance  bool           `json:"maintenance"`
}

// Snapshot returns the breaker's current state for the admin surface.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Service:      b.service,
		State:        b.state,
		FailureCount: len(b.failures),
		Maintenance:  b.maintenance,
	}
	if b.maintenance {
		snap.State = StateOpen
	}
	if b.state != StateClosed && !b.openedAt.IsZero() {
		t := b.openedAt
		snap.OpenedAt = &t
	}
	return snap
}

// Registry holds one breaker per service.
type Registry struct {
	mu       sync.Mutex
	breakers map[models.Service]*Breaker

	threshold int
	window    time.Duration
	cooldown  time.Duration
}

// NewRegistry creates a registry that builds breakers on first use with
// the given settings.
func NewRegistry(threshold int, window, cooldown time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[models.Service]*Breaker),
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
	}
}

// Get returns the breaker for a service, creating it if needed.
func (r *Registry) Get(service models.Service) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[service]
	if !ok {
		b = New(service, r.threshold, r.window, r.cooldown)
		r.breakers[service] = b
	}
	return b
}

// Snapshots returns the admin view of every known service's breaker.
func (r *Registry) Snapshots() []Snapshot {
	snaps := make([]Snapshot, 0, len(models.Services))
	for _, service := range models.Services {
		snaps = append(snaps, r.Get(service).Snapshot())
	}
	return snaps
}
