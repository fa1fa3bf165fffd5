// Package alert emits threshold-crossing notifications for operator
// attention when error rate or latency degrades.
package alert

import (
	"log"
	"sync"
	"time"
)

// Sink receives threshold-crossing events. Implementations forward to
// whatever paging or chat channel operators watch.
type Sink interface {
	Emit(metric string, value float64, threshold float64)
}

// LogSink is the default sink: it just logs.
type LogSink struct{}

func (LogSink) Emit(metric string, value float64, threshold float64) {
	log.Printf("ALERT: %s=%.3f crossed threshold %.3f", metric, value, threshold)
}

type sample struct {
	at      time.Time
	failed  bool
	latency time.Duration
}

// Monitor tracks outcomes over a trailing window and emits to the sink
// when error rate or average latency crosses its threshold. The alarm
// re-arms once the metric drops back below threshold.
type Monitor struct {
	sink      Sink
	window    time.Duration
	errorRate float64
	latency   time.Duration

	mu           sync.Mutex
	samples      []sample
	errorAlarmed bool
	latAlarmed   bool

	now func() time.Time
}

// NewMonitor creates a monitor. A nil sink falls back to LogSink.
func NewMonitor(sink Sink, window time.Duration, errorRate float64, latency time.Duration) *Monitor {
	if sink == nil {
		sink = LogSink{}
	}
	return &Monitor{
		sink:      sink,
		window:    window,
		errorRate: errorRate,
		latency:   latency,
		now:       time.Now,
	}
}

// Observe records one completed portal call.
func (m *Monitor) Observe(failed bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.samples = append(m.samples, sample{at: now, failed: failed, latency: latency})
	m.trimLocked(now)
	m.evaluateLocked()
}

func (m *Monitor) trimLocked(now time.Time) {
	cutoff := now.Add(-m.window)
	kept := m.samples[:0]
	for _, s := range m.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	m.samples = kept
}

func (m *Monitor) evaluateLocked() {
	if len(m.samples) == 0 {
		return
	}

	failures := 0
	var totalLatency time.Duration
	for _, s := range m.samples {
		if s.failed {
			failures++
		}
		totalLatency += s.latency
	}

	rate := float64(failures) / float64(len(m.samples))
	if rate >= m.errorRate {
		if !m.errorAlarmed {
			m.errorAlarmed = true
			m.sink.Emit("error_rate", rate, m.errorRate)
		}
	} else {
		m.errorAlarmed = false
	}

	avgLatency := totalLatency / time.Duration(len(m.samples))
	if avgLatency >= m.latency {
		if !m.latAlarmed {
			m.latAlarmed = true
			m.sink.Emit("avg_latency_seconds", avgLatency.Seconds(), m.latency.Seconds())
		}
	} else {
		m.latAlarmed = false
	}
}
