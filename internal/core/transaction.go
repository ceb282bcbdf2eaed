package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Credit TransactionType = "credit"
	Debit  TransactionType = "debit"
)

type (
	// TransactionType is the direction of a transaction.
	TransactionType string

	Money struct {
		Cents int64
	}

	// Transaction is an immutable ledger row. Amount carries the sign:
	// credits are positive, debits negative.
	Transaction struct {
		ID        uuid.UUID
		Title     string
		Amount    Money
		SessionID string
		CreatedAt time.Time
	}

	// NewTransaction is a validated creation request. Amount is always the
	// positive magnitude; the sign is derived from Type.
	NewTransaction struct {
		Title  string
		Amount Money
		Type   TransactionType
	}

	// Summary is the balance of a session.
	Summary struct {
		Amount Money
	}
)

var (
	ErrValidation    = errors.New("validation error")
	ErrEmptyTitle    = errors.New("title must not be empty")
	ErrInvalidAmount = errors.New("amount must be a positive number")
	ErrInvalidType   = errors.New("type must be one of credit, debit")
	ErrEmptySession  = errors.New("session id must not be empty")
)

// Issue is a single field-level validation failure.
type Issue struct {
	Field string
	Err   error
}

// ValidationError collects every issue found while validating an input.
// errors.Is matches ErrValidation and each issue's error.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %v", is.Field, is.Err))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Issues)+1)
	errs = append(errs, ErrValidation)
	for _, is := range e.Issues {
		errs = append(errs, is.Err)
	}
	return errs
}

// Add records an issue for field.
func (e *ValidationError) Add(field string, err error) {
	e.Issues = append(e.Issues, Issue{Field: field, Err: err})
}

// OrNil returns e when it holds issues and nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

// ParseTransactionType accepts the exact lowercase names only.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case Credit, Debit:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

func (t TransactionType) Valid() bool {
	return t == Credit || t == Debit
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

func (n NewTransaction) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(n.Title) == "" {
		verr.Add("title", ErrEmptyTitle)
	}
	if err := n.Amount.Validate(); err != nil {
		verr.Add("amount", err)
	}
	if !n.Type.Valid() {
		verr.Add("type", ErrInvalidType)
	}
	return verr.OrNil()
}

// SignedAmount returns the amount as it is stored: positive for credits,
// negated for debits.
func (n NewTransaction) SignedAmount() Money {
	if n.Type == Debit {
		return n.Amount.Neg()
	}
	return n.Amount
}
