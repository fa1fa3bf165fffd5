package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govbridge/govchat/internal/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	key := Key(models.ServiceBirthCertificate, "NIRA/2023/123456")
	require.NoError(t, store.Set(ctx, key, map[string]string{"status": "ready"}, time.Minute))

	value, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ready", value["status"])
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	key := Key(models.ServiceTaxStatus, "1234567890")
	require.NoError(t, store.Set(ctx, key, map[string]string{"status": "compliant"}, 10*time.Millisecond))

	time.Sleep(20 * time.Millisecond)

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "an entry must never be served past stored_at + ttl")
}

func TestMemoryStoreCounters(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	key := Key(models.ServiceLandTitle, "KYADONDO-217/1375")

	_, _, _ = store.Get(ctx, key)
	require.NoError(t, store.Set(ctx, key, map[string]string{"owner": "registered"}, time.Minute))
	_, _, _ = store.Get(ctx, key)
	_, _, _ = store.Get(ctx, key)

	stats := store.Stats()
	require.EqualValues(t, 2, stats.Hits)
	require.EqualValues(t, 1, stats.Misses)
}

func TestMemoryStoreReturnsCopy(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	key := Key(models.ServiceTaxStatus, "1234567890")
	require.NoError(t, store.Set(ctx, key, map[string]string{"status": "compliant"}, time.Minute))

	value, _, err := store.Get(ctx, key)
	require.NoError(t, err)
	value["status"] = "mutated"

	again, _, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "compliant", again["status"])
}

func TestKeyNormalization(t *testing.T) {
	a := Key(models.ServiceBirthCertificate, " nira/2023/123456 ")
	b := Key(models.ServiceBirthCertificate, "NIRA/2023/123456")
	require.Equal(t, b, a)

	// Same lookup key under different services must not collide.
	c := Key(models.ServiceTaxStatus, "NIRA/2023/123456")
	require.NotEqual(t, a, c)
}
