//go:build integration

package outbox

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/bookstore/internal/testenv"
	"github.com/dmehra2102/bookstore/pkg/events"
)

func TestLockBatchKeepsAggregateOrderAcrossFailures(t *testing.T) {
	pool := testenv.Postgres(t)
	ctx := context.Background()
	_, err := pool.Exec(ctx, Schema)
	require.NoError(t, err)

	enqueue := func(aggID, typ string) {
		msg, err := events.New(typ, events.OrderPayload{})
		require.NoError(t, err)
		e, err := Build(events.TopicOrders, "order", aggID, msg, "")
		require.NoError(t, err)
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, Insert(ctx, tx, e))
		require.NoError(t, tx.Commit(ctx))
	}
	enqueue("1", events.TypeOrderCreated) // id 1
	enqueue("1", events.TypeOrderPaid)    // id 2
	enqueue("2", events.TypeOrderCreated) // id 3

	store := NewPGStore(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)

	batch, err := store.LockBatch(ctx, "relay-a", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, pendingIDs(batch))

	// A second relay cannot jump ahead of the in-flight OrderCreated.
	other, err := store.LockBatch(ctx, "relay-b", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, store.MarkFailed(ctx, 1, "broker unavailable"))
	require.NoError(t, store.MarkSent(ctx, []int64{3}))

	batch, err = store.LockBatch(ctx, "relay-a", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, pendingIDs(batch), "OrderPaid waits for its OrderCreated")

	require.NoError(t, store.MarkSent(ctx, []int64{1}))
	batch, err = store.LockBatch(ctx, "relay-a", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, pendingIDs(batch))
}
