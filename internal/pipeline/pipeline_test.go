package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govbridge/govchat/internal/alert"
	"github.com/govbridge/govchat/internal/breaker"
	"github.com/govbridge/govchat/internal/cache"
	"github.com/govbridge/govchat/internal/models"
	"github.com/govbridge/govchat/internal/portal"
	"github.com/govbridge/govchat/internal/retry"
)

// fakeAutomator counts calls and serves scripted outcomes.
type fakeAutomator struct {
	mu      sync.Mutex
	calls   int
	outcome func(call int) (map[string]string, error)
}

func (f *fakeAutomator) Execute(ctx context.Context, service models.Service, operation models.Operation, payload map[string]string) (map[string]string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.outcome(call)
}

func (f *fakeAutomator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestExecutor(automator portal.Automator) (*Executor, *breaker.Registry, cache.Store) {
	breakers := breaker.NewRegistry(3, 2*time.Minute, 5*time.Minute)
	cacheStore := cache.NewMemoryStore(0)
	policy := retry.NewPolicy(3, time.Millisecond, 2*time.Millisecond)
	monitor := alert.NewMonitor(alert.LogSink{}, time.Minute, 0.99, time.Hour)
	exec := NewExecutor(automator, breakers, cacheStore, policy, monitor, func(models.Service) time.Duration {
		return time.Minute
	})
	return exec, breakers, cacheStore
}

func newRequest(service models.Service, operation models.Operation, reference string) *models.ServiceRequest {
	return &models.ServiceRequest{
		RequestID:    "req-1",
		SessionID:    "sess-1",
		Service:      service,
		Operation:    operation,
		InputPayload: map[string]string{"reference": reference},
		EnqueuedAt:   time.Now(),
	}
}

func TestSecondLookupServedFromCache(t *testing.T) {
	automator := &fakeAutomator{outcome: func(int) (map[string]string, error) {
		return map[string]string{"status": "ready for pickup"}, nil
	}}
	exec, _, _ := newTestExecutor(automator)
	ctx := context.Background()

	first := exec.Execute(ctx, newRequest(models.ServiceBirthCertificate, models.OpStatusCheck, "NIRA/2023/123456"))
	require.True(t, first.Success)
	require.Equal(t, models.SourceLive, first.Source)
	require.Equal(t, "ready for pickup", first.ResultPayload["status"])

	second := exec.Execute(ctx, newRequest(models.ServiceBirthCertificate, models.OpStatusCheck, "NIRA/2023/123456"))
	require.True(t, second.Success)
	require.Equal(t, models.SourceCache, second.Source)
	require.Equal(t, 1, automator.callCount(), "cached lookup must not call the automator again")
}

func TestWriteOperationsAreNeverCached(t *testing.T) {
	automator := &fakeAutomator{outcome: func(int) (map[string]string, error) {
		return map[string]string{"receipt": "ok"}, nil
	}}
	exec, _, _ := newTestExecutor(automator)
	ctx := context.Background()

	first := exec.Execute(ctx, newRequest(models.ServiceTaxStatus, models.OpFormSubmit, "1234567890"))
	require.True(t, first.Success)

	second := exec.Execute(ctx, newRequest(models.ServiceTaxStatus, models.OpFormSubmit, "1234567890"))
	require.True(t, second.Success)
	require.Equal(t, models.SourceLive, second.Source)
	require.Equal(t, 2, automator.callCount())
}

func TestTemporaryFailureExhaustsRetries(t *testing.T) {
	automator := &fakeAutomator{outcome: func(int) (map[string]string, error) {
		return nil, portal.NewTemporary(models.ServicePensionBalance, "portal timeout", nil)
	}}
	exec, _, _ := newTestExecutor(automator)

	result := exec.Execute(context.Background(), newRequest(models.ServicePensionBalance, models.OpLookup, "1234567890123"))
	require.False(t, result.Success)
	require.Equal(t, models.KindServiceTimeout, result.Kind)
	require.Equal(t, 4, automator.callCount()) // initial + 3 retries
	require.Equal(t, 4, result.Attempts)
}

func TestPermanentFailureFailsImmediately(t *testing.T) {
	automator := &fakeAutomator{outcome: func(int) (map[string]string, error) {
		return nil, portal.NewPermanent(models.ServiceTaxStatus, "reference rejected", nil)
	}}
	exec, _, _ := newTestExecutor(automator)

	result := exec.Execute(context.Background(), newRequest(models.ServiceTaxStatus, models.OpStatusCheck, "1234567890"))
	require.False(t, result.Success)
	require.Equal(t, models.KindServiceError, result.Kind)
	require.Equal(t, 1, automator.callCount(), "permanent failures must not be retried")
}

func TestOpenBreakerShortCircuits(t *testing.T) {
	automator := &fakeAutomator{outcome: func(int) (map[string]string, error) {
		return nil, portal.NewTemporary(models.ServicePensionBalance, "portal timeout", nil)
	}}
	exec, breakers, _ := newTestExecutor(automator)
	ctx := context.Background()

	// Three failed requests trip the breaker (threshold 3).
	for i := 0; i < 3; i++ {
		result := exec.Execute(ctx, newRequest(models.ServicePensionBalance, models.OpLookup, "1234567890123"))
		require.False(t, result.Success)
	}
	require.Equal(t, breaker.StateOpen, breakers.Get(models.ServicePensionBalance).State())

	before := automator.callCount()
	result := exec.Execute(ctx, newRequest(models.ServicePensionBalance, models.OpLookup, "1234567890123"))
	require.False(t, result.Success)
	require.Equal(t, models.KindServiceUnavailable, result.Kind)
	require.Equal(t, before, automator.callCount(), "open breaker must not invoke the automator")
}

func TestMaintenanceModeRejectsWithoutCall(t *testing.T) {
	automator := &fakeAutomator{outcome: func(int) (map[string]string, error) {
		return map[string]string{"status": "ok"}, nil
	}}
	exec, breakers, _ := newTestExecutor(automator)

	breakers.Get(models.ServiceLandTitle).SetMaintenance(true)

	result := exec.Execute(context.Background(), newRequest(models.ServiceLandTitle, models.OpLookup, "KYADONDO-217/1375"))
	require.False(t, result.Success)
	require.Equal(t, models.KindServiceUnavailable, result.Kind)
	require.Equal(t, 0, automator.callCount())
}

func TestSuccessAfterFlakyStartClosesBreaker(t *testing.T) {
	automator := &fakeAutomator{outcome: func(call int) (map[string]string, error) {
		if call < 3 {
			return nil, portal.NewTemporary(models.ServiceTaxStatus, "flaky", nil)
		}
		return map[string]string{"status": "compliant"}, nil
	}}
	exec, breakers, _ := newTestExecutor(automator)

	result := exec.Execute(context.Background(), newRequest(models.ServiceTaxStatus, models.OpStatusCheck, "1234567890"))
	require.True(t, result.Success)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, breaker.StateClosed, breakers.Get(models.ServiceTaxStatus).State())
}

func TestFailureResultsCarryNoPayload(t *testing.T) {
	automator := &fakeAutomator{outcome: func(int) (map[string]string, error) {
		return nil, portal.NewPermanent(models.ServiceTaxStatus, "rejected", nil)
	}}
	exec, _, _ := newTestExecutor(automator)

	result := exec.Execute(context.Background(), newRequest(models.ServiceTaxStatus, models.OpStatusCheck, "1234567890"))
	require.False(t, result.Success)
	require.Nil(t, result.ResultPayload)
	require.False(t, result.CompletedAt.IsZero())
}
