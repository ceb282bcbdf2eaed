package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func tx(session string, cents int64) core.Transaction {
	return core.Transaction{ID: uuid.New(), Title: "t", Amount: core.Money{Cents: cents}, SessionID: session, CreatedAt: time.Now()}
}

func TestStore_ScopesBySession(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	ta := tx(a, 5000)
	require.NoError(t, s.InsertTransaction(ctx, ta))
	require.NoError(t, s.InsertTransaction(ctx, tx(a, -2000)))
	require.NoError(t, s.InsertTransaction(ctx, tx(b, 700)))

	list, err := s.ListTransactions(ctx, a)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, ta.ID, list[0].ID)

	got, err := s.GetTransaction(ctx, b, ta.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetTransaction(ctx, a, ta.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5000), got.Amount.Cents)

	sum, err := s.SumAmounts(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), sum.Cents)
}

func TestStore_EmptySession(t *testing.T) {
	s := New()
	list, err := s.ListTransactions(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	sum, err := s.SumAmounts(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Zero(t, sum.Cents)
}

func TestStore_RejectsDuplicateID(t *testing.T) {
	s := New()
	t1 := tx(uuid.NewString(), 1)
	require.NoError(t, s.InsertTransaction(context.Background(), t1))
	assert.Error(t, s.InsertTransaction(context.Background(), t1))
}

func TestStore_ConcurrentInserts(t *testing.T) {
	s := New()
	session := uuid.NewString()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.InsertTransaction(context.Background(), tx(session, 100)))
		}()
	}
	wg.Wait()

	sum, err := s.SumAmounts(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), sum.Cents)
}
