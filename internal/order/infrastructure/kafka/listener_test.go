package kafka

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/bookstore/pkg/events"
	"github.com/dmehra2102/bookstore/pkg/metrics"
)

func TestStockDepletedRaisesAlert(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.NewConsumerMetrics(prometheus.NewRegistry(), "order")
	l := NewListener(slog.New(slog.NewJSONHandler(&buf, nil)), m)

	msg, err := events.New(events.TypeStockDepleted, events.StockDepleted{
		OrderID:  12,
		UserID:   7,
		Depleted: []events.DepletedLine{{BookID: 1, Requested: 3, Available: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, l.stockDepleted(context.Background(), msg))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StockDepleted))
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"order_id":12`)
}

func TestMalformedPayloadIsPermanent(t *testing.T) {
	l := NewListener(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)), nil)
	msg := events.Message{EventType: events.TypeUserCreated, Payload: []byte(`"not an object"`)}

	err := l.userCreated(context.Background(), msg)
	assert.Error(t, err)
}

func TestInventoryUpdatedLogs(t *testing.T) {
	var buf bytes.Buffer
	l := NewListener(slog.New(slog.NewJSONHandler(&buf, nil)), nil)
	msg, err := events.New(events.TypeInventoryUpdated, events.InventoryUpdated{BookID: 4, Quantity: 9})
	require.NoError(t, err)

	require.NoError(t, l.inventoryUpdated(context.Background(), msg))
	assert.Contains(t, buf.String(), `"book_id":4`)
}
