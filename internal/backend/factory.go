package backend

import (
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

// Factory opens backends. connectPublisher is swapped out in tests.
type Factory struct {
	logger           *log.Logger
	connectPublisher func(url, exchange, queue string, logger *log.Logger) (publisher, error)
}

type publisher interface {
	ledger.EventPublisher
	Close() error
}

// NewFactory creates a new backend factory.
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Factory{
		logger: logger.WithComponent(log.ComponentStorage),
		connectPublisher: func(url, exchange, queue string, logger *log.Logger) (publisher, error) {
			c, err := amqp.NewClient(url, exchange, queue, logger)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// FromAppConfig picks the backend settings out of the process config.
func FromAppConfig(c *config.Config) Config {
	return Config{
		Type:         BackendType(c.DataBackend),
		SQLiteDBPath: c.SQLiteDBPath,
		AMQPURL:      c.AMQPURL,
		AMQPExchange: c.AMQPExchange,
		AMQPQueue:    c.AMQPQueue,
	}
}

// Open creates the store and, when configured, the event publisher. A broker
// that cannot be reached is logged and skipped; a store that cannot be
// opened is an error.
func (f *Factory) Open(cfg Config) (*Backend, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.Type)
	}

	b := &Backend{}
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite repository: %w", err)
		}
		b.Store = repo
		f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	case MemoryBackend:
		b.Store = memory.New()
		f.logger.Info("Initialized memory backend")
	}
	b.cleanup = append(b.cleanup, b.Store.Close)

	if cfg.AMQPURL == "" {
		return b, nil
	}
	p, err := f.connectPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without transaction events",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeNetwork)
		return b, nil
	}
	b.Publisher = p
	b.cleanup = append(b.cleanup, p.Close)
	f.logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return b, nil
}
