package discount

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel carrying discount events.
const Channel = "discount.events"

const subscriberBuffer = 64

// Notifier fans discount events out to every subscriber.
type Notifier interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe returns a stream of events published after it returns and a
	// function that releases the subscription.
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

// RedisNotifier shares events between API replicas through Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisNotifier constructs RedisNotifier.
func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, Channel, payload).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	pubsub := n.client.Subscribe(ctx, Channel)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("discount: subscribe: %w", err)
	}
	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					n.logger.Warn("discard malformed discount event", slog.Any("error", err))
					continue
				}
				select {
				case out <- evt:
				case <-done:
					return
				}
			}
		}
	}()
	var once sync.Once
	release := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, release, nil
}

// Hub is an in-process Notifier for single-node deployments and tests.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	logger *slog.Logger
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: map[int]chan Event{}, logger: logger}
}

func (h *Hub) Publish(_ context.Context, evt Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("discount subscriber lagging, event dropped", slog.Int("subscriber", id), slog.String("request_id", evt.Request.ID.String()))
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context) (<-chan Event, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	var once sync.Once
	release := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, release, nil
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
