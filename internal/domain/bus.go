package domain

import (
	"context"
)

// EventBus carries rule-change and fraud-alert events. In-process channels
// for a single node, NATS when alert consumers run elsewhere.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error

	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is one event on the bus.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription is an active topic subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds settings for bus initialization.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string

	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics published by the scoring pipeline.
const (
	TopicRulesChanged = "sentinel.rules.changed"
	TopicFraudAlert   = "sentinel.fraud.alert"
)
