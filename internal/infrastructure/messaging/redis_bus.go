package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// DefaultChannel is the Redis Pub/Sub channel events are mirrored to.
const DefaultChannel = "progression:events"

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus mirrors published events over Redis Pub/Sub so that every
// worker instance can feed its projections. Local handlers receive the
// original event; remote handlers receive a RemoteEvent.
type RedisEventBus struct {
	client     *redis.Client
	pubsub     *redis.PubSub
	localBus   *InMemoryEventBus
	channel    string
	instanceID string
	timeout    time.Duration
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	// Client is the Redis client to use
	Client *redis.Client

	// Channel is the Pub/Sub channel (default DefaultChannel)
	Channel string

	// InstanceID identifies this process; its own messages are not redelivered
	InstanceID string

	// LocalBusConfig is the config for the local in-memory bus
	LocalBusConfig InMemoryEventBusConfig

	// PublishTimeout bounds one Redis PUBLISH
	PublishTimeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// NewRedisEventBus subscribes to the channel and starts the receive loop.
func NewRedisEventBus(ctx context.Context, config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Channel == "" {
		config.Channel = DefaultChannel
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	runCtx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:     config.Client,
		localBus:   NewInMemoryEventBus(config.LocalBusConfig),
		channel:    config.Channel,
		instanceID: config.InstanceID,
		timeout:    config.PublishTimeout,
		logger:     config.Logger.With("component", "redis_event_bus", "instance_id", config.InstanceID),
		ctx:        runCtx,
		cancel:     cancel,
	}

	bus.pubsub = config.Client.Subscribe(runCtx, config.Channel)
	// Receive blocks until the subscription is confirmed.
	if _, err := bus.pubsub.Receive(ctx); err != nil {
		cancel()
		_ = bus.pubsub.Close()
		_ = bus.localBus.Close()
		return nil, fmt.Errorf("subscribe %s: %w", config.Channel, err)
	}

	bus.wg.Add(1)
	go bus.receiveLoop(bus.pubsub.Channel())

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish delivers the event locally and mirrors it to Redis. A Redis
// failure is logged and does not prevent local delivery.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := EncodeEvent(event, b.instanceID)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("failed to publish to redis", "event_type", event.EventType(), "error", err)
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) receiveLoop(messages <-chan *redis.Message) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.handleMessage(msg.Payload)
		}
	}
}

func (b *RedisEventBus) handleMessage(payload string) {
	event, origin, err := DecodeEvent([]byte(payload))
	if err != nil {
		b.logger.Error("failed to decode event", "error", err)
		return
	}
	if origin == b.instanceID {
		return
	}
	if err := b.localBus.Publish(event); err != nil {
		b.logger.Error("failed to process remote event", "event_type", event.EventType(), "error", err)
	}
}

// Close unsubscribes and waits for the receive loop and local handlers.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()

	if cerr := b.localBus.Close(); cerr != nil {
		b.logger.Error("failed to close local bus", "error", cerr)
	}
	b.logger.Info("redis event bus closed")
	return err
}

// Metrics returns the current metrics from the local bus.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.localBus.Metrics()
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// RemoteEvent is an event received from another instance. Numbers in its
// payload decode as json.Number.
type RemoteEvent struct {
	Type      shared.EventType
	Aggregate string
	At        time.Time
	Data      map[string]interface{}
}

// EventType implements shared.Event.
func (e RemoteEvent) EventType() shared.EventType { return e.Type }

// AggregateID implements shared.Event.
func (e RemoteEvent) AggregateID() string { return e.Aggregate }

// OccurredAt implements shared.Event.
func (e RemoteEvent) OccurredAt() time.Time { return e.At }

// Payload implements shared.Event.
func (e RemoteEvent) Payload() map[string]interface{} { return e.Data }

// EncodeEvent serializes event with the given origin instance ID.
func EncodeEvent(event shared.Event, origin string) ([]byte, error) {
	return json.Marshal(envelope{
		InstanceID:  origin,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
}

// DecodeEvent parses a wire message into a RemoteEvent and its origin.
func DecodeEvent(data []byte) (RemoteEvent, string, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return RemoteEvent{}, "", err
	}
	if env.EventType == "" {
		return RemoteEvent{}, "", errors.New("event type is missing")
	}
	return RemoteEvent{
		Type:      env.EventType,
		Aggregate: env.AggregateID,
		At:        env.OccurredAt,
		Data:      env.Payload,
	}, env.InstanceID, nil
}
