package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dvloznov/just-save/internal/api/middleware"
	"github.com/dvloznov/just-save/internal/audit"
	"github.com/dvloznov/just-save/internal/domain"
)

// AnalysisHandler handles analyze, explain and audit endpoints.
type AnalysisHandler struct {
	svc Pipeline
	now func() time.Time
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(svc Pipeline) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, now: time.Now}
}

// Analyze handles POST /api/analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "analyze", "", err)
		return
	}

	a, err := h.svc.Analyze(r.Context(), req.Transactions)
	if err != nil {
		writeFailure(w, r, "analyze", "", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"analysis": a,
	})
}

// Explain handles POST /api/explain
func (h *AnalysisHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Analysis *domain.Analysis `json:"analysis"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "explain", "", err)
		return
	}

	text, err := h.svc.Explain(r.Context(), req.Analysis)
	if err != nil {
		writeFailure(w, r, "explain", "", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"explanation": text,
	})
}

// Audit handles POST /api/audit
func (h *AnalysisHandler) Audit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subscriptions []struct {
			domain.Subscription
			Decision string `json:"decision"`
			Notes    string `json:"notes"`
		} `json:"subscriptions"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "audit", "", err)
		return
	}

	items := make([]audit.Item, 0, len(req.Subscriptions))
	for _, s := range req.Subscriptions {
		d, err := audit.ParseDecision(s.Decision)
		if err != nil {
			writeFailure(w, r, "audit", "", fmt.Errorf("Audit: %v: %w", err, errBadRequest))
			return
		}
		items = append(items, audit.Item{Subscription: s.Subscription, Decision: d, Notes: s.Notes})
	}

	middleware.WriteJSON(w, http.StatusOK, audit.Build(items, h.now()))
}
