// Package pipeline is the resilient execution path a queue worker runs
// for each dequeued request: breaker check, cache lookup, retried
// automator call, write-through cache, one terminal result.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/govbridge/govchat/internal/alert"
	"github.com/govbridge/govchat/internal/breaker"
	"github.com/govbridge/govchat/internal/cache"
	"github.com/govbridge/govchat/internal/models"
	"github.com/govbridge/govchat/internal/portal"
	"github.com/govbridge/govchat/internal/retry"
)

// LookupKeyField is the payload field used as the cache lookup key.
const LookupKeyField = "reference"

// TTLProvider returns the cache TTL configured for a service.
type TTLProvider func(service models.Service) time.Duration

// Executor implements queue.Executor.
type Executor struct {
	automator portal.Automator
	breakers  *breaker.Registry
	cache     cache.Store
	policy    *retry.Policy
	monitor   *alert.Monitor
	ttlFor    TTLProvider
}

// NewExecutor wires the pipeline's collaborators together.
func NewExecutor(automator portal.Automator, breakers *breaker.Registry, cacheStore cache.Store, policy *retry.Policy, monitor *alert.Monitor, ttlFor TTLProvider) *Executor {
	return &Executor{
		automator: automator,
		breakers:  breakers,
		cache:     cacheStore,
		policy:    policy,
		monitor:   monitor,
		ttlFor:    ttlFor,
	}
}

// Execute drives one request through the pipeline and always returns
// exactly one result.
func (e *Executor) Execute(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult {
	brk := e.breakers.Get(req.Service)

	// Open breaker (or maintenance mode): short-circuit, no portal call.
	if !brk.Allow() {
		log.Printf("Breaker open for %s, rejecting request %s (session=%s)", req.Service, req.RequestID, req.SessionID)
		return e.failure(req, models.KindServiceUnavailable, 0)
	}

	cacheKey := cache.Key(req.Service, req.InputPayload[LookupKeyField])
	cacheable := req.Operation.Cacheable() && req.InputPayload[LookupKeyField] != ""

	if cacheable {
		if value, ok, err := e.cache.Get(ctx, cacheKey); err != nil {
			log.Printf("WARN: cache read failed for %s: %v", cacheKey, err)
		} else if ok {
			// No live call happened; free any admitted probe slot
			// without touching the breaker state.
			brk.ReleaseProbe()
			return &models.ServiceResult{
				RequestID:     req.RequestID,
				Success:       true,
				Kind:          models.KindOK,
				ResultPayload: value,
				CompletedAt:   time.Now(),
				Source:        models.SourceCache,
			}
		}
	}

	started := time.Now()
	var payload map[string]string
	attempts, err := e.policy.Do(ctx, func(callCtx context.Context) error {
		var callErr error
		payload, callErr = e.automator.Execute(callCtx, req.Service, req.Operation, req.InputPayload)
		return callErr
	})
	req.AttemptCount = attempts
	elapsed := time.Since(started)
	e.monitor.Observe(err != nil, elapsed)

	if err != nil {
		brk.RecordFailure()
		kind := models.KindServiceError
		if portal.IsTemporary(err) {
			kind = models.KindServiceTimeout
		}
		log.Printf("Request %s failed after %d attempts (session=%s service=%s): %v",
			req.RequestID, attempts, req.SessionID, req.Service, err)
		return e.failure(req, kind, attempts)
	}

	brk.RecordSuccess()

	if cacheable {
		if cerr := e.cache.Set(ctx, cacheKey, payload, e.ttlFor(req.Service)); cerr != nil {
			log.Printf("WARN: cache write failed for %s: %v", cacheKey, cerr)
		}
	}

	return &models.ServiceResult{
		RequestID:     req.RequestID,
		Success:       true,
		Kind:          models.KindOK,
		ResultPayload: payload,
		CompletedAt:   time.Now(),
		Source:        models.SourceLive,
		Attempts:      attempts,
	}
}

func (e *Executor) failure(req *models.ServiceRequest, kind models.ResultKind, attempts int) *models.ServiceResult {
	return &models.ServiceResult{
		RequestID:   req.RequestID,
		Success:     false,
		Kind:        kind,
		CompletedAt: time.Now(),
		Source:      models.SourceLive,
		Attempts:    attempts,
	}
}
