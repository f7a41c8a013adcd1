//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Sentinel scoring
// engine against a running instance.
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The tests create their own rules via POST /rules and deactivate them
// afterwards, so they can run against a shared dev instance. Point them
// at a different deployment with SENTINEL_TEST_URL.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("SENTINEL_TEST_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

type transaction struct {
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	PayerID       string  `json:"payer_id,omitempty"`
	PayerEmail    string  `json:"payer_email,omitempty"`
	PayerIP       string  `json:"payer_ip,omitempty"`
}

type detectResponse struct {
	TransactionID string   `json:"transaction_id"`
	IsFraud       bool     `json:"is_fraud"`
	FraudSource   string   `json:"fraud_source"`
	FraudReasons  []string `json:"fraud_reasons"`
}

type batchItem struct {
	IsFraud     bool   `json:"is_fraud"`
	FraudReason string `json:"fraud_reason"`
	Error       string `json:"error,omitempty"`
}

type ruleRequest struct {
	Type         string   `json:"rule_type"`
	Threshold    *float64 `json:"threshold,omitempty"`
	BlockedValue string   `json:"blocked_value,omitempty"`
}

var client = &http.Client{Timeout: 10 * time.Second}

func postJSON(t *testing.T, path string, body any, out any) int {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	resp, err := client.Post(baseURL()+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("failed to unmarshal response: %v (body: %s)", err, respBody)
		}
	}
	return resp.StatusCode
}

// createRule provisions a rule and registers cleanup that deactivates it.
func createRule(t *testing.T, req ruleRequest) {
	t.Helper()

	var created struct {
		ID string `json:"id"`
	}
	status := postJSON(t, "/rules", req, &created)
	if status != http.StatusCreated {
		t.Fatalf("rule creation failed with status %d", status)
	}

	t.Cleanup(func() {
		httpReq, err := http.NewRequest(http.MethodDelete, baseURL()+"/rules/"+created.ID, nil)
		if err != nil {
			return
		}
		resp, err := client.Do(httpReq)
		if err == nil {
			resp.Body.Close()
		}
	})
}

func f64(v float64) *float64 {
	return &v
}

func TestDetectPipeline(t *testing.T) {
	if _, err := client.Get(baseURL() + "/health"); err != nil {
		t.Skipf("sentinel not reachable at %s: %v", baseURL(), err)
	}

	createRule(t, ruleRequest{Type: "AmountThreshold", Threshold: f64(100000)})
	createRule(t, ruleRequest{Type: "BlockedEmail", BlockedValue: "fraudster@example.com"})

	t.Run("CleanTransaction", func(t *testing.T) {
		var resp detectResponse
		status := postJSON(t, "/detect", transaction{
			TransactionID: fmt.Sprintf("it-clean-%d", time.Now().UnixNano()),
			Amount:        500,
			PayerEmail:    "regular@example.com",
		}, &resp)

		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d", status)
		}
		if resp.IsFraud {
			t.Errorf("expected clean verdict, got reasons %v", resp.FraudReasons)
		}
	})

	t.Run("FraudTransaction", func(t *testing.T) {
		var resp detectResponse
		status := postJSON(t, "/detect", transaction{
			TransactionID: fmt.Sprintf("it-fraud-%d", time.Now().UnixNano()),
			Amount:        250000,
			PayerEmail:    "fraudster@example.com",
		}, &resp)

		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d", status)
		}
		if !resp.IsFraud {
			t.Fatal("expected fraud verdict")
		}
		if resp.FraudSource != "rule" {
			t.Errorf("expected fraud_source rule, got %s", resp.FraudSource)
		}
		if len(resp.FraudReasons) != 2 {
			t.Errorf("expected both rules to contribute, got %v", resp.FraudReasons)
		}
	})

	t.Run("BatchDetect", func(t *testing.T) {
		now := time.Now().UnixNano()
		fraudID := fmt.Sprintf("it-batch-fraud-%d", now)
		cleanID := fmt.Sprintf("it-batch-clean-%d", now)

		var resp map[string]batchItem
		status := postJSON(t, "/batchdetect", map[string]any{
			"transactions": []transaction{
				{TransactionID: fraudID, Amount: 250000},
				{TransactionID: cleanID, Amount: 10},
			},
		}, &resp)

		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d", status)
		}
		if !resp[fraudID].IsFraud {
			t.Errorf("expected %s to be flagged", fraudID)
		}
		if resp[cleanID].IsFraud {
			t.Errorf("expected %s to be clean", cleanID)
		}
	})

	t.Run("VerdictPersisted", func(t *testing.T) {
		txID := fmt.Sprintf("it-persist-%d", time.Now().UnixNano())
		var dr detectResponse
		if status := postJSON(t, "/detect", transaction{TransactionID: txID, Amount: 1}, &dr); status != http.StatusOK {
			t.Fatalf("detect failed: %d", status)
		}

		resp, err := client.Get(baseURL() + "/transactions/" + txID)
		if err != nil {
			t.Fatalf("get transaction failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected persisted verdict, got status %d", resp.StatusCode)
		}
	})
}
