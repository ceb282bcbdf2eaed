// Package ledger implements the session-scoped transaction ledger.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/metrics"
)

// Service appends and reads transactions for a single session at a time.
// It holds no mutable state of its own; every call is one round trip to
// the store.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    *log.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher announces every created transaction through p.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the transaction id source.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger),
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create appends a transaction to the session's ledger. The stored amount
// is positive for credits and negated for debits. Nothing is written when
// the input is invalid.
func (s *Service) Create(ctx context.Context, sessionID string, in core.NewTransaction) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return err
	}

	t := core.Transaction{
		ID:        s.newID(),
		Title:     in.Title,
		Amount:    in.SignedAmount(),
		SessionID: sessionID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertTransaction(ctx, t); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues(log.OpCreate).Inc()
		return fmt.Errorf("insert transaction: %w", err)
	}
	metrics.TransactionsCreatedTotal.WithLabelValues(string(in.Type)).Inc()

	s.logger.InfoContext(ctx, "Transaction created",
		log.FieldTransactionID, t.ID.String(),
		log.FieldTransactionType, string(in.Type),
		log.FieldAmountCents, t.Amount.Cents)

	s.publish(ctx, t)
	return nil
}

// List returns every transaction of the session. The slice is empty, never
// nil, when the session has none.
func (s *Service) List(ctx context.Context, sessionID string) ([]core.Transaction, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, sessionID)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues(log.OpList).Inc()
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

// GetByID returns the transaction with id when it belongs to the session.
// A transaction owned by another session is reported exactly like a
// missing one: nil with no error.
func (s *Service) GetByID(ctx context.Context, sessionID string, id uuid.UUID) (*core.Transaction, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	t, err := s.store.GetTransaction(ctx, sessionID, id)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues(log.OpRead).Inc()
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if t == nil || t.SessionID != sessionID {
		return nil, nil
	}
	return t, nil
}

// Summary returns the signed sum of the session's amounts, zero when empty.
func (s *Service) Summary(ctx context.Context, sessionID string) (core.Summary, error) {
	if err := requireSession(sessionID); err != nil {
		return core.Summary{}, err
	}
	total, err := s.store.SumAmounts(ctx, sessionID)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues(log.OpSummary).Inc()
		return core.Summary{}, fmt.Errorf("sum transactions: %w", err)
	}
	return core.Summary{Amount: total}, nil
}

func (s *Service) publish(ctx context.Context, t core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionCreated(ctx, t); err != nil {
		// The row is committed; downstream consumers can catch up later.
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldTransactionID, t.ID.String(),
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return &core.ValidationError{Issues: []core.Issue{{Field: "session_id", Err: core.ErrEmptySession}}}
	}
	return nil
}
