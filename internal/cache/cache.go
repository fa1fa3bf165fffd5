// Package cache provides the TTL'd lookup cache that sits in front of
// portal automation. Keys are global per (service, lookup key); portal
// records are not user-specific.
package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/govbridge/govchat/internal/models"
)

// Store defines the interface for the lookup cache.
type Store interface {
	// Get returns the cached payload for a key, or ok=false when the
	// entry is missing or past its TTL.
	Get(ctx context.Context, key string) (map[string]string, bool, error)

	// Set stores a payload under key for the given TTL.
	Set(ctx context.Context, key string, value map[string]string, ttl time.Duration) error

	// Stats reports cumulative hit/miss counters.
	Stats() Stats

	// Close releases store resources.
	Close() error
}

// Stats are cumulative cache counters for the admin surface.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Key builds the canonical cache key for a service lookup. The lookup
// key is case- and whitespace-normalized so "nira/2023/1" and
// "NIRA/2023/1 " share an entry.
func Key(service models.Service, lookupKey string) string {
	return string(service) + ":" + strings.ToUpper(strings.TrimSpace(lookupKey))
}

// counters is embedded by drivers to share the Stats accounting.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) hit()  { c.hits.Add(1) }
func (c *counters) miss() { c.misses.Add(1) }

func (c *counters) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
