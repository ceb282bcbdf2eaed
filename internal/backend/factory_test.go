package backend

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

type fakePublisher struct {
	closed bool
}

func (p *fakePublisher) PublishTransactionCreated(context.Context, core.Transaction) error {
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func newTestFactory(buf *bytes.Buffer) *Factory {
	f := NewFactory(log.New(log.Config{Format: log.FormatText, Output: buf}))
	return f
}

func TestBackendType_IsValid(t *testing.T) {
	assert.True(t, SQLiteBackend.IsValid())
	assert.True(t, MemoryBackend.IsValid())
	assert.False(t, BackendType("sheets").IsValid())
	assert.False(t, BackendType("").IsValid())
}

func TestFactory_RejectsUnknownType(t *testing.T) {
	_, err := newTestFactory(&bytes.Buffer{}).Open(Config{Type: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid backend type")
}

func TestFactory_OpensMemoryWithoutPublisher(t *testing.T) {
	b, err := newTestFactory(&bytes.Buffer{}).Open(Config{Type: MemoryBackend})
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &memory.Store{}, b.Store)
	assert.Nil(t, b.Publisher)
	assert.NoError(t, b.Store.Ping(context.Background()))
}

func TestFactory_OpensSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	b, err := newTestFactory(&bytes.Buffer{}).Open(Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)

	assert.IsType(t, &storage.SQLiteRepository{}, b.Store)
	assert.NoError(t, b.Store.Ping(context.Background()))
	assert.NoError(t, b.Close())
}

func TestFactory_WiresPublisherAndClosesIt(t *testing.T) {
	f := newTestFactory(&bytes.Buffer{})
	pub := &fakePublisher{}
	var gotURL string
	f.connectPublisher = func(url, _, _ string, _ *log.Logger) (publisher, error) {
		gotURL = url
		return pub, nil
	}

	b, err := f.Open(Config{Type: MemoryBackend, AMQPURL: "amqp://broker", AMQPExchange: "ledger", AMQPQueue: "q"})
	require.NoError(t, err)
	assert.Equal(t, "amqp://broker", gotURL)
	assert.Same(t, pub, b.Publisher)

	require.NoError(t, b.Close())
	assert.True(t, pub.closed)
}

func TestFactory_UnreachableBrokerIsNotFatal(t *testing.T) {
	var buf bytes.Buffer
	f := newTestFactory(&buf)
	f.connectPublisher = func(string, string, string, *log.Logger) (publisher, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	b, err := f.Open(Config{Type: MemoryBackend, AMQPURL: "amqp://broker"})
	require.NoError(t, err)
	assert.Nil(t, b.Publisher)
	assert.Contains(t, buf.String(), "continuing without transaction events")
}

func TestFromAppConfig(t *testing.T) {
	c := &config.Config{
		DataBackend:  "memory",
		SQLiteDBPath: "/tmp/x.db",
		AMQPURL:      "amqp://h",
		AMQPExchange: "ex",
		AMQPQueue:    "q",
	}
	assert.Equal(t, Config{
		Type:         MemoryBackend,
		SQLiteDBPath: "/tmp/x.db",
		AMQPURL:      "amqp://h",
		AMQPExchange: "ex",
		AMQPQueue:    "q",
	}, FromAppConfig(c))
}
