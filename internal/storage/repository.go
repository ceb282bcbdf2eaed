package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/ledger"

	_ "modernc.org/sqlite"
)

// createdAtLayout is fixed width so that text ordering matches time ordering.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Layouts accepted when reading created_at back; the driver may hand the
// value over already converted, and rows inserted by hand use the SQLite
// CURRENT_TIMESTAMP format.
var readLayouts = []string{
	createdAtLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

var _ ledger.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertTransaction implements ledger.Store
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		ID:          t.ID.String(),
		Title:       t.Title,
		AmountCents: t.Amount.Cents,
		SessionID:   nullString(t.SessionID),
		CreatedAt:   t.CreatedAt.UTC().Format(createdAtLayout),
	})
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"component", "storage",
		"id", t.ID.String(),
		"amount_cents", t.Amount.Cents)
	return nil
}

// ListTransactions implements ledger.Store
func (r *SQLiteRepository) ListTransactions(ctx context.Context, sessionID string) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsBySession(ctx, nullString(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list transactions by session: %w", err)
	}

	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toCore(row)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// GetTransaction implements ledger.Store
func (r *SQLiteRepository) GetTransaction(ctx context.Context, sessionID string, id uuid.UUID) (*core.Transaction, error) {
	row, err := r.queries.GetTransactionBySession(ctx, GetTransactionBySessionParams{
		ID:        id.String(),
		SessionID: nullString(sessionID),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}

	t, err := toCore(row)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SumAmounts implements ledger.Store
func (r *SQLiteRepository) SumAmounts(ctx context.Context, sessionID string) (core.Money, error) {
	total, err := r.queries.SumAmountsBySession(ctx, nullString(sessionID))
	if err != nil {
		return core.Money{}, fmt.Errorf("sum amounts by session: %w", err)
	}
	return core.Money{Cents: total}, nil
}

func toCore(row Transaction) (core.Transaction, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction id %q: %w", row.ID, err)
	}
	createdAt, err := parseCreatedAt(row.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse created_at of %s: %w", row.ID, err)
	}
	return core.Transaction{
		ID:        id,
		Title:     row.Title,
		Amount:    core.Money{Cents: row.AmountCents},
		SessionID: row.SessionID.String,
		CreatedAt: createdAt,
	}, nil
}

func parseCreatedAt(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range readLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
