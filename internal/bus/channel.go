// Package bus provides event bus implementations for Sentinel.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transactai/sentinel/internal/domain"
)

// ChannelBus is an in-process EventBus backed by buffered Go channels.
// It is the default for a single node.
type ChannelBus struct {
	bufferSize int

	mu     sync.RWMutex
	subs   map[string][]*channelSubscription
	closed bool
}

type channelSubscription struct {
	id      string
	topic   string
	handler domain.MessageHandler
	ch      chan *domain.Message
	cancel  context.CancelFunc
}

// NewChannelBus creates an in-process bus. bufferSize bounds each
// subscriber's queue; values <= 0 fall back to 1000.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		subs:       make(map[string][]*channelSubscription),
	}
}

// Publish fans the message out to every subscriber of topic. Delivery is
// non-blocking: a subscriber whose buffer is full misses the message
// rather than stalling the publisher.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	subs := b.subs[topic]
	b.mu.RUnlock()

	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}

	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a handler for a topic and starts a goroutine that
// drains the subscription's queue.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		ch:      make(chan *domain.Message, b.bufferSize),
		cancel:  cancel,
	}
	b.subs[topic] = append(b.subs[topic], sub)

	go sub.run(subCtx)
	return sub, nil
}

func (s *channelSubscription) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.ch:
			if msg != nil {
				_ = s.handler(ctx, msg)
			}
		}
	}
}

// Ping reports whether the bus is still accepting messages.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close stops all subscription goroutines and rejects further publishes.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.cancel()
			close(sub.ch)
		}
	}
	b.subs = make(map[string][]*channelSubscription)
	return nil
}

func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *channelSubscription) Topic() string {
	return s.topic
}
