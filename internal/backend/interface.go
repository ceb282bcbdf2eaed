// Package backend assembles the storage backend and the optional event
// publisher selected by the process configuration.
package backend

import (
	"context"

	"ledger/internal/ledger"
)

// BackendType names a storage implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// IsValid reports whether t is a known backend.
func (t BackendType) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	}
	return false
}

// Store is a ledger store that can also be probed and released.
type Store interface {
	ledger.Store
	Ping(ctx context.Context) error
	Close() error
}

// Config selects the backend and the broker for the event feed.
// An empty AMQPURL disables events.
type Config struct {
	Type         BackendType
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Backend is everything the ledger service needs from the outside world.
// Publisher is nil when the event feed is disabled or unreachable.
type Backend struct {
	Store     Store
	Publisher ledger.EventPublisher
	cleanup   []func() error
}

// Close releases the publisher and then the store.
func (b *Backend) Close() error {
	var first error
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
