package kafka

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/bookstore/pkg/eventbus"
	"github.com/dmehra2102/bookstore/pkg/events"
	"github.com/dmehra2102/bookstore/pkg/metrics"
)

// Listener follows user and inventory activity. Nothing here mutates orders;
// StockDepleted is raised as an alert for manual reconciliation.
type Listener struct {
	log     *slog.Logger
	metrics *metrics.ConsumerMetrics
}

func NewListener(log *slog.Logger, m *metrics.ConsumerMetrics) *Listener {
	return &Listener{log: log, metrics: m}
}

func (l *Listener) Register(c *eventbus.Consumer) {
	c.Handle(events.TypeUserCreated, l.userCreated)
	c.Handle(events.TypeInventoryUpdated, l.inventoryUpdated)
	c.Handle(events.TypeStockDepleted, l.stockDepleted)
}

func (l *Listener) userCreated(_ context.Context, msg events.Message) error {
	var p events.UserCreated
	if err := msg.Decode(&p); err != nil {
		return eventbus.Permanent(err)
	}
	l.log.Info("user created", "user_id", p.UserID, "user_name", p.UserName)
	return nil
}

func (l *Listener) inventoryUpdated(_ context.Context, msg events.Message) error {
	var p events.InventoryUpdated
	if err := msg.Decode(&p); err != nil {
		return eventbus.Permanent(err)
	}
	l.log.Info("inventory updated", "book_id", p.BookID, "quantity", p.Quantity)
	return nil
}

func (l *Listener) stockDepleted(_ context.Context, msg events.Message) error {
	var p events.StockDepleted
	if err := msg.Decode(&p); err != nil {
		return eventbus.Permanent(err)
	}
	l.log.Error("order placed against insufficient stock",
		"order_id", p.OrderID, "user_id", p.UserID, "depleted", p.Depleted, "event_id", msg.EventID)
	if l.metrics != nil {
		l.metrics.StockDepleted.Inc()
	}
	return nil
}
