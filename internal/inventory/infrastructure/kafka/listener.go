package kafka

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/bookstore/internal/inventory/domain"
	"github.com/dmehra2102/bookstore/pkg/eventbus"
	"github.com/dmehra2102/bookstore/pkg/events"
	"github.com/dmehra2102/bookstore/pkg/metrics"
)

type OrderApplier interface {
	ApplyOrderCreated(ctx context.Context, msg events.Message) (domain.ApplyResult, error)
}

// Listener turns order-events into stock movements.
type Listener struct {
	log     *slog.Logger
	svc     OrderApplier
	metrics *metrics.ConsumerMetrics
}

func NewListener(log *slog.Logger, svc OrderApplier, m *metrics.ConsumerMetrics) *Listener {
	return &Listener{log: log, svc: svc, metrics: m}
}

func (l *Listener) Register(c *eventbus.Consumer) {
	c.Handle(events.TypeOrderCreated, l.orderCreated)
	c.Handle(events.TypeOrderPaid, l.orderPaid)
}

func (l *Listener) orderCreated(ctx context.Context, msg events.Message) error {
	res, err := l.svc.ApplyOrderCreated(ctx, msg)
	if err != nil {
		return err
	}
	if len(res.Depleted) > 0 && l.metrics != nil {
		l.metrics.StockDepleted.Inc()
	}
	return nil
}

func (l *Listener) orderPaid(_ context.Context, msg events.Message) error {
	var p events.OrderPayload
	if err := msg.Decode(&p); err != nil {
		return eventbus.Permanent(err)
	}
	l.log.Info("order paid", "order_id", p.OrderID, "user_id", p.UserID)
	return nil
}
