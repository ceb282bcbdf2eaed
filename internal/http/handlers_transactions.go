package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/metrics"
	"ledger/internal/session"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	transactionIDKey
)

// requireSession rejects requests without a well-formed session token
// before they reach the ledger.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := session.FromRequest(r)
		if !session.Valid(token) {
			log.FromContext(r.Context()).DebugContext(r.Context(), "Request without a valid session",
				log.FieldErrorType, log.ErrorTypeAuth,
				"token_present", token != "")
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionIDKey, token)))
	}
}

// withTransactionID rejects a malformed {id} path value with 400 whether
// or not the caller has a session.
func (s *Server) withTransactionID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseTransactionID(r.PathValue("id"))
		if err != nil {
			s.writeServiceError(w, r, log.OpRead, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), transactionIDKey, id)))
	}
}

func sessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.List(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, log.OpList, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, listResponse{Transactions: out})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(transactionIDKey).(uuid.UUID)
	t, err := s.ledger.GetByID(r.Context(), sessionFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, log.OpRead, err)
		return
	}
	resp := getResponse{}
	if t != nil {
		tr := newTransactionResponse(*t)
		resp.Transaction = &tr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ledger.Summary(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: amountResponse{Amount: jsonAmount(sum.Amount)}})
}

// handleCreateTransaction validates the body, appends the transaction and
// answers 201 with no body. A client without a valid token gets a new one;
// an existing token is never rewritten.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	in, err := decodeCreateTransaction(w, r)
	if err != nil {
		s.writeServiceError(w, r, log.OpCreate, err)
		return
	}

	sessionID, mint := s.resolver.Resolve(session.FromRequest(r))
	if err := s.ledger.Create(r.Context(), sessionID, in); err != nil {
		s.writeServiceError(w, r, log.OpCreate, err)
		return
	}

	if mint {
		s.resolver.Persist(w, sessionID)
		metrics.SessionsMintedTotal.Inc()
		log.FromContext(r.Context()).WithComponent(log.ComponentSession).
			DebugContext(r.Context(), "Session token issued", log.FieldSessionMinted, true)
	}
	w.WriteHeader(http.StatusCreated)
}

// writeServiceError maps ledger errors onto status codes. Validation
// failures are client errors and are not logged as faults.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *core.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		log.FromContext(r.Context()).WarnContext(r.Context(), "Request rejected",
			log.FieldErrorType, log.ErrorTypeValidation,
			log.FieldOperation, op,
			log.FieldError, err)
		writeValidationError(w, verr)
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
	case errors.Is(err, errUnsupportedMediaType):
		writeError(w, http.StatusUnsupportedMediaType, msgUnsupportedMediaType)
	default:
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Ledger operation failed", err, log.ErrorTypeDatabase, op, nil)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
