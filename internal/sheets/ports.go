// Package sheets declares the spreadsheet mirror ports.
package sheets

import (
	"context"

	"ledger/internal/core"
)

// TransactionWriter appends a committed transaction to an external
// spreadsheet and returns a reference to the written row.
type TransactionWriter interface {
	AppendTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
}
