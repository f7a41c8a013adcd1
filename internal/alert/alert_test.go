package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/transactai/sentinel/internal/bus"
	"github.com/transactai/sentinel/internal/domain"
)

// recordingNotifier captures delivered payloads.
type recordingNotifier struct {
	mu       sync.Mutex
	payloads []*Payload
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, p *Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.payloads = append(n.payloads, p)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.payloads)
}

func TestDispatchDeliversAlert(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	notifier := &recordingNotifier{}
	deliverer := NewDeliverer(b, notifier)
	if err := deliverer.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer deliverer.Stop()

	d := NewDispatcher(b, time.Second)
	tx := &domain.Transaction{
		TransactionID: "tx-1",
		Amount:        5000,
		PayerID:       "payer-1",
		PayerMobile:   "+15550001111",
	}
	v := &domain.Verdict{
		ID:            "v-1",
		TransactionID: "tx-1",
		IsFraud:       true,
		FraudSource:   domain.FraudSourceRule,
		FraudReasons:  []string{"High transaction amount (> 1000)"},
		EvaluatedAt:   time.Now().UTC(),
	}

	d.Dispatch(tx, v)
	d.Wait()

	waitFor(t, func() bool { return notifier.count() == 1 })

	got := notifier.payloads[0]
	if got.TransactionID != "tx-1" || got.PayerMobile != "+15550001111" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if len(got.FraudReasons) != 1 {
		t.Errorf("expected 1 reason, got %v", got.FraudReasons)
	}
}

func TestDispatchNeverFailsCaller(t *testing.T) {
	// A closed bus makes every publish fail; Dispatch must swallow it.
	b := bus.NewChannelBus(10)
	b.Close()

	d := NewDispatcher(b, time.Second)
	d.Dispatch(
		&domain.Transaction{TransactionID: "tx-1", Amount: 1},
		&domain.Verdict{ID: "v-1", TransactionID: "tx-1", IsFraud: true, FraudReasons: []string{"x"}},
	)
	d.Wait()
}

func TestDelivererSkipsMalformedMessages(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	notifier := &recordingNotifier{}
	deliverer := NewDeliverer(b, notifier)
	if err := deliverer.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer deliverer.Stop()

	ctx := context.Background()
	if err := b.Publish(ctx, domain.TopicFraudAlert, []byte("not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	valid, _ := json.Marshal(&Payload{TransactionID: "tx-2"})
	if err := b.Publish(ctx, domain.TopicFraudAlert, valid); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return notifier.count() == 1 })

	if notifier.payloads[0].TransactionID != "tx-2" {
		t.Errorf("unexpected payload: %+v", notifier.payloads[0])
	}
}

func TestNotifierFailureStaysLocal(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	notifier := &recordingNotifier{err: fmt.Errorf("sms gateway down")}
	deliverer := NewDeliverer(b, notifier)
	if err := deliverer.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer deliverer.Stop()

	d := NewDispatcher(b, time.Second)
	d.Dispatch(
		&domain.Transaction{TransactionID: "tx-1", Amount: 1},
		&domain.Verdict{ID: "v-1", TransactionID: "tx-1", IsFraud: true, FraudReasons: []string{"x"}},
	)
	d.Wait()

	// Nothing to assert beyond "no panic, no propagation": the failure is
	// logged inside the deliverer.
	time.Sleep(50 * time.Millisecond)
	if notifier.count() != 0 {
		t.Errorf("expected no successful deliveries, got %d", notifier.count())
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
