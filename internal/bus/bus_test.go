package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/transactai/sentinel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var received atomic.Int64
	var lastPayload atomic.Value

	_, err := b.Subscribe(ctx, domain.TopicFraudAlert, func(ctx context.Context, msg *domain.Message) error {
		lastPayload.Store(string(msg.Payload))
		received.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicFraudAlert, []byte("hello")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return received.Load() == 1 })

	if got := lastPayload.Load(); got != "hello" {
		t.Errorf("expected payload hello, got %v", got)
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var alerts, ruleChanges atomic.Int64

	b.Subscribe(ctx, domain.TopicFraudAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts.Add(1)
		return nil
	})
	b.Subscribe(ctx, domain.TopicRulesChanged, func(ctx context.Context, msg *domain.Message) error {
		ruleChanges.Add(1)
		return nil
	})

	b.Publish(ctx, domain.TopicRulesChanged, []byte("{}"))

	waitFor(t, func() bool { return ruleChanges.Load() == 1 })

	if alerts.Load() != 0 {
		t.Errorf("alert subscriber received a rules-changed message")
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	for i := 0; i < 3; i++ {
		b.Subscribe(ctx, domain.TopicFraudAlert, func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
	}

	b.Publish(ctx, domain.TopicFraudAlert, []byte("x"))

	waitFor(t, func() bool { return count.Load() == 3 })
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	sub, err := b.Subscribe(ctx, domain.TopicFraudAlert, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if sub.Topic() != domain.TopicFraudAlert {
		t.Errorf("unexpected topic %q", sub.Topic())
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	b.Publish(ctx, domain.TopicFraudAlert, []byte("x"))
	time.Sleep(50 * time.Millisecond)

	if count.Load() != 0 {
		t.Errorf("unsubscribed handler received %d messages", count.Load())
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(10)
	b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, domain.TopicFraudAlert, []byte("x")); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
	if _, err := b.Subscribe(ctx, domain.TopicFraudAlert, nil); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping on closed bus to fail")
	}
}

func TestBusFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected *ChannelBus, got %T", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "smoke-signals"}); err == nil {
		t.Error("expected error for unknown bus type")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
