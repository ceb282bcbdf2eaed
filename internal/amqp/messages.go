package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// EventTransactionCreated is the type header set on every published event.
const EventTransactionCreated = "transaction.created"

// TransactionCreatedMessage announces a committed transaction. It carries
// only the keys; consumers read the row itself from the store.
type TransactionCreatedMessage struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionCreatedMessage(t core.Transaction) *TransactionCreatedMessage {
	return &TransactionCreatedMessage{
		ID:        t.ID,
		SessionID: t.SessionID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionCreatedMessageFromJSON decodes and checks a message body.
func TransactionCreatedMessageFromJSON(data []byte) (*TransactionCreatedMessage, error) {
	var msg TransactionCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", EventTransactionCreated, err)
	}
	if msg.ID == uuid.Nil {
		return nil, errors.New("message has no transaction id")
	}
	if msg.SessionID == "" {
		return nil, errors.New("message has no session id")
	}
	return &msg, nil
}
