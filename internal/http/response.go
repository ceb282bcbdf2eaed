package http

import (
	"encoding/json"
	"net/http"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
)

const (
	msgUnauthorized         = "Unauthorized."
	msgValidation           = "Validation error."
	msgInternal             = "Internal server error."
	msgBodyTooLarge         = "Request body too large."
	msgUnsupportedMediaType = "Unsupported media type."
	msgRateLimited          = "Too many requests."
)

type transactionResponse struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Amount    json.Number `json:"amount"`
	SessionID string      `json:"session_id"`
	CreatedAt string      `json:"created_at"`
}

type listResponse struct {
	Transactions []transactionResponse `json:"transactions"`
}

type getResponse struct {
	Transaction *transactionResponse `json:"transaction"`
}

type amountResponse struct {
	Amount json.Number `json:"amount"`
}

type summaryResponse struct {
	Summary amountResponse `json:"summary"`
}

type errorResponse struct {
	Error  string          `json:"error"`
	Issues []issueResponse `json:"issues,omitempty"`
}

type issueResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// jsonAmount renders cents as an exact decimal JSON number.
func jsonAmount(m core.Money) json.Number {
	return json.Number(m.Decimal())
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID.String(),
		Title:     t.Title,
		Amount:    jsonAmount(t.Amount),
		SessionID: t.SessionID,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeValidationError(w http.ResponseWriter, verr *core.ValidationError) {
	issues := make([]issueResponse, 0, len(verr.Issues))
	for _, is := range verr.Issues {
		issues = append(issues, issueResponse{Field: is.Field, Message: is.Err.Error()})
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgValidation, Issues: issues})
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).
		WarnContext(r.Context(), "Rate limit exceeded", log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, msgRateLimited)
}
