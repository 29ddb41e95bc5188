package messaging

import (
	"sync"
	"time"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// EventBusMetrics tracks publish and handler counters per event type.
type EventBusMetrics struct {
	mu sync.RWMutex

	published       map[shared.EventType]int64
	handlerRuns     map[shared.EventType]int64
	handlerFailures map[shared.EventType]int64
	handlerDuration time.Duration
	startedAt       time.Time
}

// NewEventBusMetrics creates new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		published:       make(map[shared.EventType]int64),
		handlerRuns:     make(map[shared.EventType]int64),
		handlerFailures: make(map[shared.EventType]int64),
		startedAt:       time.Now(),
	}
}

// RecordPublish records a publish event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	m.published[eventType]++
	m.mu.Unlock()
}

// RecordHandlerExecution records a handler execution.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerRuns[eventType]++
	m.handlerDuration += duration
	if !success {
		m.handlerFailures[eventType]++
	}
}

// Published returns how many events of eventType were published.
func (m *EventBusMetrics) Published(eventType shared.EventType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published[eventType]
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := EventBusMetricsSnapshot{StartedAt: m.startedAt, HandlerSuccessRate: 1.0}
	for _, v := range m.published {
		s.TotalPublished += v
	}
	for _, v := range m.handlerRuns {
		s.TotalHandlerExecs += v
	}
	for _, v := range m.handlerFailures {
		s.TotalHandlerFailures += v
	}
	if s.TotalHandlerExecs > 0 {
		s.AverageHandlerDuration = m.handlerDuration / time.Duration(s.TotalHandlerExecs)
		s.HandlerSuccessRate = float64(s.TotalHandlerExecs-s.TotalHandlerFailures) / float64(s.TotalHandlerExecs)
	}
	return s
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	TotalHandlerFailures   int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
	StartedAt              time.Time
}
