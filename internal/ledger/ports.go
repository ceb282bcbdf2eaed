package ledger

import (
	"context"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// Store persists transactions. Every read is scoped to one session.
	Store interface {
		InsertTransaction(ctx context.Context, t core.Transaction) error
		ListTransactions(ctx context.Context, sessionID string) ([]core.Transaction, error)
		// GetTransaction returns nil, nil when no row matches both id and session.
		GetTransaction(ctx context.Context, sessionID string, id uuid.UUID) (*core.Transaction, error)
		SumAmounts(ctx context.Context, sessionID string) (core.Money, error)
	}

	// EventPublisher announces committed transactions to downstream consumers.
	EventPublisher interface {
		PublishTransactionCreated(ctx context.Context, t core.Transaction) error
	}
)
