// Package queue decouples request arrival from processing capacity:
// one bounded FIFO queue and a fixed worker pool per service, so a
// stuck portal only exhausts its own workers.
package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/govbridge/govchat/internal/models"
)

// ErrBackpressure is returned by Submit when a service's queue is full.
// Callers surface it to the citizen instead of blocking.
var ErrBackpressure = errors.New("service queue at capacity")

// Executor runs one dequeued request to completion and returns its
// single terminal result.
type Executor interface {
	Execute(ctx context.Context, req *models.ServiceRequest) *models.ServiceResult
}

type item struct {
	req     *models.ServiceRequest
	resultC chan *models.ServiceResult
}

// Queue is the bounded FIFO queue for one service.
type Queue struct {
	service  models.Service
	items    chan *item
	executor Executor
	workers  int
	avg      *avgTracker

	mu        sync.Mutex
	cancelled map[string]struct{}
}

// NewQueue creates a queue with the given capacity and worker count.
func NewQueue(service models.Service, capacity, workers int, executor Executor) *Queue {
	return &Queue{
		service:   service,
		items:     make(chan *item, capacity),
		executor:  executor,
		workers:   workers,
		avg:       newAvgTracker(20),
		cancelled: make(map[string]struct{}),
	}
}

// Submit enqueues a request. It returns the 1-based queue position, the
// estimated wait before completion, and a channel that delivers the
// request's single ServiceResult. A full queue fails fast with
// ErrBackpressure.
func (q *Queue) Submit(req *models.ServiceRequest) (int, time.Duration, <-chan *models.ServiceResult, error) {
	it := &item{
		req:     req,
		resultC: make(chan *models.ServiceResult, 1),
	}

	select {
	case q.items <- it:
	default:
		return 0, 0, nil, ErrBackpressure
	}

	position := len(q.items)
	wait := time.Duration(position) * q.avg.Average()
	return position, wait, it.resultC, nil
}

// Cancel marks a request so it is skipped if still queued. A request
// already handed to a worker runs to completion; its result is
// discarded by the session owner, not here.
func (q *Queue) Cancel(requestID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[requestID] = struct{}{}
}

func (q *Queue) takeCancelled(requestID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.cancelled[requestID]; ok {
		delete(q.cancelled, requestID)
		return true
	}
	return false
}

// Start launches the worker pool; workers exit when ctx is done.
func (q *Queue) Start(ctx context.Context, wg *sync.WaitGroup) {
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.run(ctx, worker)
		}(i)
	}
}

func (q *Queue) run(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-q.items:
			q.process(ctx, worker, it)
		}
	}
}

func (q *Queue) process(ctx context.Context, worker int, it *item) {
	if q.takeCancelled(it.req.RequestID) {
		log.Printf("Request %s cancelled before dispatch (service=%s)", it.req.RequestID, q.service)
		it.resultC <- &models.ServiceResult{
			RequestID:   it.req.RequestID,
			Success:     false,
			Kind:        models.KindUnknown,
			CompletedAt: time.Now(),
			Source:      models.SourceLive,
		}
		return
	}

	started := time.Now()
	result := q.executor.Execute(ctx, it.req)

	// Only live portal calls inform the wait estimate. Cache hits and
	// open-breaker short-circuits return in microseconds and would drag
	// the average far below real portal latency.
	if result.Source == models.SourceLive && result.Attempts > 0 {
		q.avg.Record(time.Since(started))
	}

	// A cancel that raced with dequeue leaves a stale marker; drop it.
	q.takeCancelled(it.req.RequestID)

	log.Printf("Worker %s/%d finished request %s: kind=%s source=%s attempts=%d",
		q.service, worker, it.req.RequestID, result.Kind, result.Source, result.Attempts)

	it.resultC <- result
}

// Depth reports how many requests are waiting.
func (q *Queue) Depth() int {
	return len(q.items)
}

// AvgProcessingTime is the rolling mean execution duration.
func (q *Queue) AvgProcessingTime() time.Duration {
	return q.avg.Average()
}

// avgTracker keeps a rolling window of processing durations.
type avgTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  bool
}

func newAvgTracker(window int) *avgTracker {
	return &avgTracker{samples: make([]time.Duration, window)}
}

func (t *avgTracker) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = d
	t.next = (t.next + 1) % len(t.samples)
	if t.next == 0 {
		t.filled = true
	}
}

func (t *avgTracker) Average() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	if t.filled {
		n = len(t.samples)
	}
	if n == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += t.samples[i]
	}
	return total / time.Duration(n)
}
