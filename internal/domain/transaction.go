package domain

import (
	"fmt"
	"time"
)

// Transaction represents one payment event submitted for scoring.
// Constructed from an inbound request, immutable once evaluated.
type Transaction struct {
	// TransactionID is caller-supplied. The store does not enforce
	// uniqueness; duplicates are accepted as distinct evaluation requests.
	TransactionID string `json:"transaction_id"`

	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`

	// Descriptive attributes, each a candidate match field for
	// blocklist rules. All optional.
	Channel      string `json:"channel,omitempty"`
	PaymentMode  string `json:"payment_mode,omitempty"`
	GatewayBank  string `json:"gateway_bank,omitempty"`
	PayerID      string `json:"payer_id,omitempty"`
	PayerEmail   string `json:"payer_email,omitempty"`
	PayerBrowser string `json:"payer_browser,omitempty"`
	PayerIP      string `json:"payer_ip,omitempty"`
	PayerMobile  string `json:"payer_mobile,omitempty"`
	PayeeID      string `json:"payee_id,omitempty"`
}

// Validate checks the constraints the evaluator relies on.
func (t *Transaction) Validate() error {
	if t.TransactionID == "" {
		return fmt.Errorf("transaction_id is required")
	}
	if t.Amount < 0 {
		return fmt.Errorf("amount must be non-negative")
	}
	return nil
}
