package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/bookstore/internal/order/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/events"
	"github.com/dmehra2102/bookstore/pkg/outbox"
	"github.com/dmehra2102/bookstore/pkg/tracing"
)

type Service struct {
	log    *slog.Logger
	orders OrderRepository
	carts  CartRepository
	prices PriceClient
	tracer trace.Tracer
}

func NewService(log *slog.Logger, orders OrderRepository, carts CartRepository, prices PriceClient) *Service {
	return &Service{
		log:    log,
		orders: orders,
		carts:  carts,
		prices: prices,
		tracer: otel.Tracer("order-service"),
	}
}

// CreateOrder trusts the caller's prices as long as they are positive.
func (s *Service) CreateOrder(ctx context.Context, userID int64, lines []domain.OrderLine) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	o, err := domain.NewOrder(userID, lines)
	if err != nil {
		return domain.Order{}, err
	}
	saved, err := s.orders.Create(ctx, o, orderEvent(ctx, events.TypeOrderCreated))
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("order created", "order_id", saved.ID, "user_id", userID, "lines", len(saved.Lines))
	return saved, nil
}

func (s *Service) CreateOrderFromCart(ctx context.Context, userID int64) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrderFromCart", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return domain.Order{}, apperr.NotFound("Cart not found for user: %d", userID)
		}
		return domain.Order{}, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return domain.Order{}, apperr.InvalidState("Cart is empty")
	}

	prices, err := s.prices.GetPrices(ctx, cart.BookIDs())
	if err != nil {
		return domain.Order{}, apperr.Upstream(err, "Failed to retrieve book prices")
	}
	if len(prices) == 0 {
		return domain.Order{}, apperr.InvalidState("Failed to retrieve book prices")
	}

	lines := make([]domain.OrderLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		p, ok := prices[l.BookID]
		// A zero price is what the fallback answers with, so it is not a price.
		if !ok || !p.IsPositive() {
			return domain.Order{}, apperr.InvalidState("Price not found for book ID: %d", l.BookID)
		}
		lines = append(lines, domain.OrderLine{BookID: l.BookID, Quantity: l.Quantity, Price: p})
	}

	o, err := domain.NewOrder(userID, lines)
	if err != nil {
		return domain.Order{}, err
	}
	saved, err := s.orders.Create(ctx, o, orderEvent(ctx, events.TypeOrderCreated))
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order from cart: %w", err)
	}
	s.log.Info("order created from cart", "order_id", saved.ID, "user_id", userID, "lines", len(saved.Lines))

	if err := s.carts.Delete(ctx, userID); err != nil {
		s.log.Warn("cart cleanup after checkout failed", "user_id", userID, "order_id", saved.ID, "err", err)
	}
	return saved, nil
}

// ConfirmPayment publishes OrderPaid on every call, including for orders that
// are already PAID.
func (s *Service) ConfirmPayment(ctx context.Context, orderID int64) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "ConfirmPayment", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	o, err := s.orders.MarkPaid(ctx, orderID, orderEvent(ctx, events.TypeOrderPaid))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return domain.Order{}, apperr.NotFound("Order not found with id: %d", orderID)
		}
		return domain.Order{}, fmt.Errorf("confirm payment: %w", err)
	}
	s.log.Info("payment confirmed", "order_id", orderID)
	return o, nil
}

func (s *Service) GetOrderStatus(ctx context.Context, orderID int64) (domain.OrderStatus, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", apperr.NotFound("Order not found with id: %d", orderID)
		}
		return "", fmt.Errorf("get order: %w", err)
	}
	return o.Status, nil
}

func (s *Service) GetOrderHistory(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func orderEvent(ctx context.Context, eventType string) EventFunc {
	traceparent := tracing.Traceparent(ctx)
	return func(o domain.Order) (outbox.Event, error) {
		msg, err := events.New(eventType, o.EventPayload())
		if err != nil {
			return outbox.Event{}, err
		}
		return outbox.Build(events.TopicOrders, "order", strconv.FormatInt(o.ID, 10), msg, traceparent)
	}
}
