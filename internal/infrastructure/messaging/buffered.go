package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// BufferedEventBus buffers events and flushes them to an inner bus in
// batches, on size or on a timer.
type BufferedEventBus struct {
	inner       shared.EventBus
	buffer      []shared.Event
	bufferSize  int
	flushTicker *time.Ticker
	mu          sync.Mutex
	logger      *slog.Logger
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// BufferedEventBusConfig contains configuration for BufferedEventBus.
type BufferedEventBusConfig struct {
	// Inner is the underlying event bus
	Inner shared.EventBus

	// BufferSize is the maximum events to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush regardless of buffer size
	FlushInterval time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// NewBufferedEventBus creates a new buffered event bus.
func NewBufferedEventBus(config BufferedEventBusConfig) *BufferedEventBus {
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	bus := &BufferedEventBus{
		inner:       config.Inner,
		buffer:      make([]shared.Event, 0, config.BufferSize),
		bufferSize:  config.BufferSize,
		flushTicker: time.NewTicker(config.FlushInterval),
		logger:      config.Logger.With("component", "buffered_event_bus"),
		closeCh:     make(chan struct{}),
	}

	bus.wg.Add(1)
	go bus.flushLoop()

	return bus
}

// Subscribe delegates to inner bus.
func (b *BufferedEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.inner.Subscribe(eventType, handler)
}

// SubscribeAll delegates to inner bus.
func (b *BufferedEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.inner.SubscribeAll(handler)
}

// Publish buffers the event. Events keep their publish order across flushes.
func (b *BufferedEventBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.buffer = append(b.buffer, event)
	if len(b.buffer) >= b.bufferSize {
		return b.flushLocked()
	}
	return nil
}

// Flush manually flushes the buffer.
func (b *BufferedEventBus) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// Len returns the number of buffered events.
func (b *BufferedEventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

func (b *BufferedEventBus) flushLocked() error {
	if len(b.buffer) == 0 {
		return nil
	}

	events := b.buffer
	b.buffer = make([]shared.Event, 0, b.bufferSize)

	var lastErr error
	for _, event := range events {
		if err := b.inner.Publish(event); err != nil {
			b.logger.Error("failed to publish buffered event", "event_type", event.EventType(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (b *BufferedEventBus) flushLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.closeCh:
			return
		case <-b.flushTicker.C:
			_ = b.Flush()
		}
	}
}

// Close flushes remaining events and stops the flush loop.
// The inner bus is not closed.
func (b *BufferedEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.flushTicker.Stop()
	close(b.closeCh)
	err := b.flushLocked()
	b.mu.Unlock()

	b.wg.Wait()
	return err
}
