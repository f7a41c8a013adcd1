// Package alert delivers fraud notifications asynchronously. Dispatch
// publishes to the event bus and returns immediately; a Deliverer
// subscription hands alerts to the configured notifier channel.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/transactai/sentinel/internal/domain"
)

// Payload is the alert message body published on the bus.
type Payload struct {
	TransactionID string   `json:"transaction_id"`
	PayerID       string   `json:"payer_id"`
	PayerMobile   string   `json:"payer_mobile"`
	Amount        float64  `json:"amount"`
	FraudReasons  []string `json:"fraud_reasons"`
	EvaluatedAt   string   `json:"evaluated_at"`
}

// Notifier sends an alert over an external channel (SMS, webhook, ...).
type Notifier interface {
	Notify(ctx context.Context, p *Payload) error
}

// Dispatcher publishes fraud alerts without blocking the scoring path.
type Dispatcher struct {
	bus     domain.EventBus
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher that publishes to the fraud alert topic.
func NewDispatcher(bus domain.EventBus, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{bus: bus, timeout: timeout}
}

// Dispatch fires an alert for a fraudulent verdict. It never returns an
// error: delivery problems are logged, not surfaced to the caller, so a
// broken alert channel cannot fail a detection request.
func (d *Dispatcher) Dispatch(tx *domain.Transaction, v *domain.Verdict) {
	p := &Payload{
		TransactionID: tx.TransactionID,
		PayerID:       tx.PayerID,
		PayerMobile:   tx.PayerMobile,
		Amount:        tx.Amount,
		FraudReasons:  v.FraudReasons,
		EvaluatedAt:   v.EvaluatedAt.UTC().Format(time.RFC3339Nano),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		data, err := json.Marshal(p)
		if err != nil {
			slog.Error("failed to marshal alert",
				"transaction_id", p.TransactionID,
				"error", err,
			)
			return
		}

		if err := d.bus.Publish(ctx, domain.TopicFraudAlert, data); err != nil {
			slog.Error("alert delivery failed",
				"transaction_id", p.TransactionID,
				"error", fmt.Errorf("%w: %v", domain.ErrAlertDeliveryFailed, err),
			)
		}
	}()
}

// Wait blocks until all in-flight dispatches have completed. Used during
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Deliverer consumes fraud alerts from the bus and hands them to a Notifier.
type Deliverer struct {
	bus      domain.EventBus
	notifier Notifier
	sub      domain.Subscription
}

// NewDeliverer creates an alert consumer.
func NewDeliverer(bus domain.EventBus, notifier Notifier) *Deliverer {
	return &Deliverer{bus: bus, notifier: notifier}
}

// Start subscribes to the fraud alert topic.
func (d *Deliverer) Start(ctx context.Context) error {
	sub, err := d.bus.Subscribe(ctx, domain.TopicFraudAlert, d.handleAlert)
	if err != nil {
		return fmt.Errorf("failed to subscribe to alerts: %w", err)
	}
	d.sub = sub

	slog.Info("alert deliverer started", "topic", domain.TopicFraudAlert)
	return nil
}

func (d *Deliverer) handleAlert(ctx context.Context, msg *domain.Message) error {
	var p Payload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Error("failed to parse alert message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := d.notifier.Notify(ctx, &p); err != nil {
		slog.Error("alert delivery failed",
			"transaction_id", p.TransactionID,
			"error", fmt.Errorf("%w: %v", domain.ErrAlertDeliveryFailed, err),
		)
		return err
	}

	return nil
}

// Stop unsubscribes from the alert topic.
func (d *Deliverer) Stop() error {
	if d.sub == nil {
		return nil
	}
	if err := d.sub.Unsubscribe(); err != nil {
		return err
	}
	d.sub = nil

	slog.Info("alert deliverer stopped")
	return nil
}

// LogNotifier writes alerts to the structured log. It stands in for an
// SMS or webhook integration in single-node deployments.
type LogNotifier struct{}

// Notify logs the alert.
func (LogNotifier) Notify(ctx context.Context, p *Payload) error {
	slog.Warn("fraud alert",
		"transaction_id", p.TransactionID,
		"payer_id", p.PayerID,
		"payer_mobile", p.PayerMobile,
		"amount", p.Amount,
		"fraud_reasons", p.FraudReasons,
	)
	return nil
}
