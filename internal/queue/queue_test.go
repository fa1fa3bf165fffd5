package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/govbridge/govchat/internal/models"
)

// executorFunc adapts a func to the Executor interface.
type executorFunc func(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult

func (f executorFunc) Execute(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult {
	return f(ctx, req)
}

func okExecutor() executorFunc {
	return func(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult {
		return &models.ServiceResult{
			RequestID:   req.RequestID,
			Success:     true,
			Kind:        models.KindOK,
			CompletedAt: time.Now(),
			Source:      models.SourceLive,
			Attempts:    1,
		}
	}
}

func newRequest(service models.Service) *models.ServiceRequest {
	return &models.ServiceRequest{
		RequestID:    uuid.NewString(),
		SessionID:    uuid.NewString(),
		Service:      service,
		Operation:    models.OpStatusCheck,
		InputPayload: map[string]string{"reference": "1234567890"},
		EnqueuedAt:   time.Now(),
	}
}

func TestSubmitBackpressureWhenFull(t *testing.T) {
	// No workers started: submissions accumulate.
	q := NewQueue(models.ServiceTaxStatus, 2, 1, okExecutor())

	_, _, _, err := q.Submit(newRequest(models.ServiceTaxStatus))
	require.NoError(t, err)
	_, _, _, err = q.Submit(newRequest(models.ServiceTaxStatus))
	require.NoError(t, err)

	_, _, _, err = q.Submit(newRequest(models.ServiceTaxStatus))
	require.ErrorIs(t, err, ErrBackpressure)
}

func TestSubmitReportsPosition(t *testing.T) {
	q := NewQueue(models.ServiceTaxStatus, 5, 1, okExecutor())

	pos, _, _, err := q.Submit(newRequest(models.ServiceTaxStatus))
	require.NoError(t, err)
	require.Equal(t, 1, pos)

	pos, _, _, err = q.Submit(newRequest(models.ServiceTaxStatus))
	require.NoError(t, err)
	require.Equal(t, 2, pos)
	require.Equal(t, 2, q.Depth())
}

func TestWorkersPreserveFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	exec := executorFunc(func(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult {
		mu.Lock()
		order = append(order, req.RequestID)
		mu.Unlock()
		return okExecutor()(ctx, req)
	})

	// Single worker so dequeue order is observable.
	q := NewQueue(models.ServiceTaxStatus, 10, 1, exec)

	var ids []string
	var channels []<-chan *models.ServiceResult
	for i := 0; i < 5; i++ {
		req := newRequest(models.ServiceTaxStatus)
		ids = append(ids, req.RequestID)
		_, _, resultC, err := q.Submit(req)
		require.NoError(t, err)
		channels = append(channels, resultC)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	q.Start(ctx, &wg)

	for _, resultC := range channels {
		select {
		case <-resultC:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for result")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, ids, order)
}

func TestEveryRequestGetsExactlyOneResult(t *testing.T) {
	q := NewQueue(models.ServiceTaxStatus, 10, 2, okExecutor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	q.Start(ctx, &wg)

	var channels []<-chan *models.ServiceResult
	for i := 0; i < 8; i++ {
		_, _, resultC, err := q.Submit(newRequest(models.ServiceTaxStatus))
		require.NoError(t, err)
		channels = append(channels, resultC)
	}

	for _, resultC := range channels {
		select {
		case result := <-resultC:
			require.NotNil(t, result)
		case <-time.After(2 * time.Second):
			t.Fatal("request never produced a result")
		}
	}
}

func TestCancelledRequestSkipsExecution(t *testing.T) {
	executed := false
	exec := executorFunc(func(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult {
		executed = true
		return okExecutor()(ctx, req)
	})
	q := NewQueue(models.ServiceTaxStatus, 10, 1, exec)

	req := newRequest(models.ServiceTaxStatus)
	_, _, resultC, err := q.Submit(req)
	require.NoError(t, err)

	q.Cancel(req.RequestID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	q.Start(ctx, &wg)

	select {
	case result := <-resultC:
		require.False(t, result.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancelled result")
	}
	require.False(t, executed, "cancelled request must not reach the executor")
}

func TestAvgTrackerRollingAverage(t *testing.T) {
	tracker := newAvgTracker(4)
	require.Equal(t, time.Duration(0), tracker.Average())

	tracker.Record(2 * time.Second)
	tracker.Record(4 * time.Second)
	require.Equal(t, 3*time.Second, tracker.Average())

	// Fill past the window: oldest samples roll off.
	tracker.Record(4 * time.Second)
	tracker.Record(4 * time.Second)
	tracker.Record(10 * time.Second) // overwrites the 2s sample
	require.Equal(t, (4+4+4+10)*time.Second/4, tracker.Average())
}

func TestWaitEstimateIgnoresCacheHitsAndShortCircuits(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult {
		switch req.InputPayload["outcome"] {
		case "cached":
			return &models.ServiceResult{
				RequestID:   req.RequestID,
				Success:     true,
				Kind:        models.KindOK,
				CompletedAt: time.Now(),
				Source:      models.SourceCache,
			}
		case "rejected":
			// Open-breaker short-circuit: no portal call was made.
			return &models.ServiceResult{
				RequestID:   req.RequestID,
				Success:     false,
				Kind:        models.KindServiceUnavailable,
				CompletedAt: time.Now(),
				Source:      models.SourceLive,
			}
		default:
			time.Sleep(20 * time.Millisecond)
			return okExecutor()(ctx, req)
		}
	})
	q := NewQueue(models.ServiceTaxStatus, 10, 1, exec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	q.Start(ctx, &wg)

	submit := func(outcome string) {
		req := newRequest(models.ServiceTaxStatus)
		req.InputPayload["outcome"] = outcome
		_, _, resultC, err := q.Submit(req)
		require.NoError(t, err)
		select {
		case <-resultC:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for result")
		}
	}

	submit("cached")
	submit("rejected")
	require.Equal(t, time.Duration(0), q.AvgProcessingTime(),
		"cache hits and breaker rejections must not feed the wait estimate")

	submit("live")
	require.GreaterOrEqual(t, q.AvgProcessingTime(), 20*time.Millisecond)
}

func TestDispatcherRoutesByService(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[models.Service]int)
	exec := executorFunc(func(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult {
		mu.Lock()
		seen[req.Service]++
		mu.Unlock()
		return okExecutor()(ctx, req)
	})

	d := NewDispatcher(10, 1, exec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	_, _, taxC, err := d.Submit(newRequest(models.ServiceTaxStatus))
	require.NoError(t, err)
	_, _, landC, err := d.Submit(newRequest(models.ServiceLandTitle))
	require.NoError(t, err)

	<-taxC
	<-landC

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, seen[models.ServiceTaxStatus])
	require.Equal(t, 1, seen[models.ServiceLandTitle])
}

func TestDispatcherDepths(t *testing.T) {
	d := NewDispatcher(5, 1, okExecutor())

	_, _, _, err := d.Submit(newRequest(models.ServiceTaxStatus))
	require.NoError(t, err)

	infos := d.Depths()
	require.Len(t, infos, len(models.Services))
	for _, info := range infos {
		if info.Service == models.ServiceTaxStatus {
			require.Equal(t, 1, info.Depth)
		} else {
			require.Equal(t, 0, info.Depth)
		}
		require.Equal(t, 5, info.Capacity)
	}
}
