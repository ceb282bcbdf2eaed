// Package worker copies committed transactions into the spreadsheet mirror.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/metrics"
	"ledger/internal/sheets"
)

// DefaultTimeout bounds the store read plus the spreadsheet write for one event.
const DefaultTimeout = 30 * time.Second

// TransactionReader is the part of the store the worker reads from.
type TransactionReader interface {
	GetTransaction(ctx context.Context, sessionID string, id uuid.UUID) (*core.Transaction, error)
}

// MirrorWorker handles transaction.created events by appending the stored
// row to the spreadsheet.
type MirrorWorker struct {
	store   TransactionReader
	sheets  sheets.TransactionWriter
	timeout time.Duration
	logger  *log.Logger
}

func NewMirrorWorker(store TransactionReader, writer sheets.TransactionWriter, timeout time.Duration, logger *log.Logger) *MirrorWorker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MirrorWorker{
		store:   store,
		sheets:  writer,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleMessage mirrors the transaction named by msg. An error asks the
// broker to redeliver; a transaction that no longer resolves is skipped.
func (w *MirrorWorker) HandleMessage(ctx context.Context, msg *amqp.TransactionCreatedMessage) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	t, err := w.store.GetTransaction(ctx, msg.SessionID, msg.ID)
	if err != nil {
		metrics.MirroredRowsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("get transaction %s: %w", msg.ID, err)
	}
	if t == nil {
		metrics.MirroredRowsTotal.WithLabelValues("skipped").Inc()
		w.logger.WarnContext(ctx, "Transaction not found, skipping mirror",
			log.FieldTransactionID, msg.ID.String(),
			log.FieldErrorType, log.ErrorTypeNotFound)
		return nil
	}

	ref, err := w.sheets.AppendTransaction(ctx, *t)
	if err != nil {
		metrics.MirroredRowsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("mirror transaction %s: %w", msg.ID, err)
	}

	metrics.MirroredRowsTotal.WithLabelValues("ok").Inc()
	w.logger.InfoContext(ctx, "Transaction mirrored",
		log.FieldOperation, log.OpMirror,
		log.FieldTransactionID, t.ID.String(),
		"row_ref", ref,
		"lag_ms", time.Since(msg.Timestamp).Milliseconds())
	return nil
}
