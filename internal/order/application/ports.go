package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/internal/order/domain"
	"github.com/dmehra2102/bookstore/pkg/outbox"
)

// EventFunc builds the outbox row for an order once the store has assigned
// its id. It runs inside the transaction that persists the order.
type EventFunc func(o domain.Order) (outbox.Event, error)

type OrderRepository interface {
	Create(ctx context.Context, o domain.Order, event EventFunc) (domain.Order, error)
	MarkPaid(ctx context.Context, id int64, event EventFunc) (domain.Order, error)
	Get(ctx context.Context, id int64) (domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
}

type CartRepository interface {
	// Get returns apperr.ErrNotFound when the user has no cart.
	Get(ctx context.Context, userID int64) (domain.Cart, error)
	Save(ctx context.Context, c domain.Cart) error
	Delete(ctx context.Context, userID int64) error
}

// PriceClient never fails on downstream trouble; it answers with zero prices.
type PriceClient interface {
	GetPrice(ctx context.Context, bookID int64) (decimal.Decimal, error)
	GetPrices(ctx context.Context, bookIDs []int64) (map[int64]decimal.Decimal, error)
}
