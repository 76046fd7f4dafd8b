package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/internal/inventory/domain"
	"github.com/dmehra2102/bookstore/pkg/events"
	"github.com/dmehra2102/bookstore/pkg/outbox"
)

// ShortageFunc builds the compensating event when an order cannot be
// covered. It runs inside the decrement transaction.
type ShortageFunc func(depleted []events.DepletedLine) (outbox.Event, error)

type StockRepository interface {
	CreateBook(ctx context.Context, b domain.Book, quantity int) (domain.BookView, error)
	GetBook(ctx context.Context, id int64) (domain.BookView, error)
	Prices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error)
	SoftDeleteBook(ctx context.Context, id int64) error

	SetQuantity(ctx context.Context, bookID int64, quantity int, event outbox.Event) error
	Decrease(ctx context.Context, bookID int64, by int) (int, error)
	Status(ctx context.Context, bookID int64) (domain.StockStatus, error)
	FilterByMinStock(ctx context.Context, minStock int) ([]domain.StockStatus, error)
	LowStock(ctx context.Context, threshold int) ([]domain.StockStatus, error)
	AuditLog(ctx context.Context, bookID int64) ([]domain.LogEntry, error)

	// ApplyOrder decrements every line or none. eventID makes redelivery a
	// no-op; an empty id skips that check.
	ApplyOrder(ctx context.Context, eventID string, lines []domain.StockLine, onShortage ShortageFunc) (domain.ApplyResult, error)
}

// BookCache failures are the cache's own concern; a miss is always safe.
type BookCache interface {
	Get(ctx context.Context, id int64) (domain.BookView, bool)
	Set(ctx context.Context, v domain.BookView)
	Invalidate(ctx context.Context, ids ...int64)
}
