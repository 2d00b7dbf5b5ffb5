// Package bus wraps a Redis pub/sub connection behind the PubSubBridge
// contract: one upstream subscription per channel regardless of how many
// local handlers register, publish is fire-and-forget, and subscriber
// churn never blocks the receive loop.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Handler is invoked once per message received on a subscribed channel.
// It must not block — slow handlers should hand off to their own queue.
type Handler func(channel string, payload []byte)

type subscription struct {
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	handlers map[int]Handler
	nextID   int
}

// Bridge is the PubSubBridge: a thin Redis-backed fan-out layer sitting
// between Publisher and SessionHub.
type Bridge struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*subscription
}

// New connects to a Redis instance used purely as a pub/sub transport.
func New(addr string) *Bridge {
	return &Bridge{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		subs:   make(map[string]*subscription),
	}
}

// Publish sends a JSON-encodable message to a channel. Publishing is
// fire-and-forget: failures are logged and otherwise swallowed so the
// tick pipeline that calls this never blocks on bus health.
func (b *Bridge) Publish(ctx context.Context, channel string, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("bus: marshal failed for channel %s: %v", channel, err)
		return
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		log.Printf("bus: publish to %s failed: %v", channel, err)
	}
}

// Subscribe registers a handler for a channel, opening the upstream Redis
// subscription on first registration. Returns an unsubscribe function.
// ctx bounds only the initial subscribe; the upstream subscription and
// its receive loop stay open until the last handler unsubscribes or the
// bridge is closed.
func (b *Bridge) Subscribe(ctx context.Context, channel string, handler Handler) (unsubscribe func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[channel]
	if !ok {
		ps := b.client.Subscribe(ctx, channel)
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
		}
		loopCtx, cancel := context.WithCancel(context.Background())
		sub = &subscription{pubsub: ps, cancel: cancel, handlers: make(map[int]Handler)}
		b.subs[channel] = sub
		go b.receiveLoop(loopCtx, channel, sub)
	}

	id := sub.nextID
	sub.nextID++
	sub.handlers[id] = handler

	return func() { b.unsubscribe(channel, id) }, nil
}

// receiveLoop owns the single upstream subscription for a channel and
// dispatches every incoming message to all currently-registered handlers.
// Handlers must be non-blocking; this loop does not offload for them.
func (b *Bridge) receiveLoop(ctx context.Context, channel string, sub *subscription) {
	ch := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(channel, sub, []byte(msg.Payload))
		}
	}
}

func (b *Bridge) dispatch(channel string, sub *subscription, payload []byte) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(sub.handlers))
	for _, h := range sub.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(channel, payload)
	}
}

func (b *Bridge) unsubscribe(channel string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[channel]
	if !ok {
		return
	}
	delete(sub.handlers, id)
	if len(sub.handlers) == 0 {
		sub.cancel()
		sub.pubsub.Close()
		delete(b.subs, channel)
	}
}

// Close releases every upstream subscription and the underlying client.
func (b *Bridge) Close() error {
	b.mu.Lock()
	for channel, sub := range b.subs {
		sub.cancel()
		sub.pubsub.Close()
		delete(b.subs, channel)
	}
	b.mu.Unlock()
	return b.client.Close()
}
