package queue

import (
	"context"
	"sync"
	"time"

	"github.com/govbridge/govchat/internal/models"
)

// Dispatcher owns one Queue per service and routes submissions.
type Dispatcher struct {
	queues map[models.Service]*Queue
	wg     sync.WaitGroup
}

// NewDispatcher builds a queue for every known service.
func NewDispatcher(capacity, workers int, executor Executor) *Dispatcher {
	queues := make(map[models.Service]*Queue, len(models.Services))
	for _, service := range models.Services {
		queues[service] = NewQueue(service, capacity, workers, executor)
	}
	return &Dispatcher{queues: queues}
}

// Start launches every service's worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, q := range d.queues {
		q.Start(ctx, &d.wg)
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Submit routes a request to its service's queue.
func (d *Dispatcher) Submit(req *models.ServiceRequest) (int, time.Duration, <-chan *models.ServiceResult, error) {
	q, ok := d.queues[req.Service]
	if !ok {
		return 0, 0, nil, ErrBackpressure
	}
	return q.Submit(req)
}

// Cancel marks a queued request for skipping.
func (d *Dispatcher) Cancel(service models.Service, requestID string) {
	if q, ok := d.queues[service]; ok {
		q.Cancel(requestID)
	}
}

// DepthInfo is the admin view of one service queue.
type DepthInfo struct {
	Service           models.Service `json:"service"`
	Depth             int            `json:"depth"`
	Capacity          int            `json:"capacity"`
	AvgProcessingTime string         `json:"avg_processing_time"`
}

// Depths reports every queue's depth in stable service order.
func (d *Dispatcher) Depths() []DepthInfo {
	infos := make([]DepthInfo, 0, len(d.queues))
	for _, service := range models.Services {
		q := d.queues[service]
		infos = append(infos, DepthInfo{
			Service:           service,
			Depth:             q.Depth(),
			Capacity:          cap(q.items),
			AvgProcessingTime: q.AvgProcessingTime().String(),
		})
	}
	return infos
}
