// Package bus provides event transports for rule-change and fraud-alert
// notifications.
package bus

import (
	"fmt"

	"github.com/transactai/sentinel/internal/domain"
)

// New creates an EventBus based on the configured type.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unknown event bus type: %q", cfg.Type)
	}
}
