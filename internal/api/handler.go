package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/transactai/sentinel/internal/domain"
	"github.com/transactai/sentinel/internal/ingest"
	"github.com/transactai/sentinel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	eval    *rules.Evaluator
	ingest  *ingest.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eval *rules.Evaluator, ing *ingest.Service, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		eval:    eval,
		ingest:  ing,
		version: version,
	}
}

// DetectResponse is the response for POST /detect.
type DetectResponse struct {
	TransactionID string   `json:"transaction_id"`
	IsFraud       bool     `json:"is_fraud"`
	FraudSource   string   `json:"fraud_source"`
	FraudReasons  []string `json:"fraud_reasons"`
}

// Detect handles POST /detect requests.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := tx.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	v, err := h.ingest.ProcessOne(ctx, &tx)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DetectResponse{
		TransactionID: v.TransactionID,
		IsFraud:       v.IsFraud,
		FraudSource:   v.FraudSource,
		FraudReasons:  v.FraudReasons,
	})
}

// BatchDetectRequest is the request body for POST /batchdetect.
type BatchDetectRequest struct {
	Transactions []*domain.Transaction `json:"transactions"`
}

// BatchItemResponse is one entry of the batch response mapping.
type BatchItemResponse struct {
	IsFraud     bool   `json:"is_fraud"`
	FraudReason string `json:"fraud_reason"`
	Error       string `json:"error,omitempty"`
}

// BatchDetect handles POST /batchdetect requests. Each transaction is
// scored independently; a failed item is reported in place rather than
// aborting the batch.
func (h *Handler) BatchDetect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchDetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions is required and must be non-empty",
		})
		return
	}

	for _, tx := range req.Transactions {
		if tx.Timestamp.IsZero() {
			tx.Timestamp = time.Now().UTC()
		}
	}

	outcomes := h.ingest.ProcessBatch(ctx, req.Transactions)

	resp := make(map[string]BatchItemResponse, len(outcomes))
	for txID, out := range outcomes {
		if out.Err != nil {
			resp[txID] = BatchItemResponse{Error: out.Err.Error()}
			continue
		}
		resp[txID] = BatchItemResponse{
			IsFraud:     out.Verdict.IsFraud,
			FraudReason: out.Verdict.JoinedReasons(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	Type         domain.RuleType `json:"rule_type"`
	Threshold    *float64        `json:"threshold,omitempty"`
	BlockedValue string          `json:"blocked_value,omitempty"`
	Expression   string          `json:"expression,omitempty"`
}

// CreateRule validates and persists a new rule, then signals the change
// on the bus so pollers can refresh.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rule := &domain.Rule{
		Type:         req.Type,
		Threshold:    req.Threshold,
		BlockedValue: req.BlockedValue,
		Expression:   req.Expression,
		Active:       true,
	}

	if err := rule.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if rule.Type == domain.RuleExpression {
		if err := h.eval.ValidateExpression(rule.Expression); err != nil {
			writeError(w, err)
			return
		}
	}

	id, err := h.repo.AddRule(ctx, rule)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishRulesChanged(r)

	slog.Info("rule created", "id", id, "rule_type", rule.Type)
	writeJSON(w, http.StatusCreated, rule)
}

// ListRules returns all active rules in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := h.repo.ListActiveRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": ruleSet,
		"count": len(ruleSet),
	})
}

// DeleteRule soft-deletes a rule by id.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if err := h.repo.DeactivateRule(r.Context(), ruleID); err != nil {
		writeError(w, err)
		return
	}

	h.publishRulesChanged(r)

	slog.Info("rule deactivated", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     ruleID,
		"status": "deactivated",
	})
}

// RulesMeta reports when the rule set last changed. Consumers poll this
// instead of sharing a mutable flag with the scoring path.
func (h *Handler) RulesMeta(w http.ResponseWriter, r *http.Request) {
	modified, err := h.repo.RulesLastModified(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"last_modified": modified.UTC().Format(time.RFC3339Nano),
	})
}

// GetTransaction returns the most recent verdict record for a transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	tx, v, err := h.repo.GetVerdict(r.Context(), txID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.VerdictRecord{
		Transaction: *tx,
		Verdict:     *v,
	})
}

// ListTransactions returns the latest verdict records, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	records, err := h.repo.ListVerdicts(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// publishRulesChanged announces a rule mutation. Best-effort: the poll
// endpoint remains authoritative if the bus drops the event.
func (h *Handler) publishRulesChanged(r *http.Request) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"changed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := h.bus.Publish(r.Context(), domain.TopicRulesChanged, payload); err != nil {
		slog.Warn("failed to publish rules changed event", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRule):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
