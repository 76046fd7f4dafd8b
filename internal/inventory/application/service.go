package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/bookstore/internal/inventory/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/events"
	"github.com/dmehra2102/bookstore/pkg/outbox"
	"github.com/dmehra2102/bookstore/pkg/tracing"
)

type Service struct {
	log    *slog.Logger
	repo   StockRepository
	cache  BookCache
	tracer trace.Tracer
}

func NewService(log *slog.Logger, repo StockRepository, cache BookCache) *Service {
	if cache == nil {
		cache = noCache{}
	}
	return &Service{log: log, repo: repo, cache: cache, tracer: otel.Tracer("inventory-service")}
}

func (s *Service) CreateBook(ctx context.Context, title, author, genre, isbn string, price decimal.Decimal, quantity int) (domain.BookView, error) {
	b, err := domain.NewBook(title, author, genre, isbn, price)
	if err != nil {
		return domain.BookView{}, err
	}
	if quantity <= 0 {
		return domain.BookView{}, apperr.Validation("Quantity must be positive")
	}
	v, err := s.repo.CreateBook(ctx, b, quantity)
	if err != nil {
		return domain.BookView{}, fmt.Errorf("create book: %w", err)
	}
	s.log.Info("book created", "book_id", v.ID, "quantity", quantity)
	return v, nil
}

func (s *Service) GetBook(ctx context.Context, id int64) (domain.BookView, error) {
	if v, ok := s.cache.Get(ctx, id); ok {
		return v, nil
	}
	v, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return domain.BookView{}, err
	}
	s.cache.Set(ctx, v)
	return v, nil
}

// GetPrices omits unknown and deleted books.
func (s *Service) GetPrices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[int64]decimal.Decimal{}, nil
	}
	prices, err := s.repo.Prices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	return prices, nil
}

func (s *Service) SoftDeleteBook(ctx context.Context, id int64) error {
	if err := s.repo.SoftDeleteBook(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	s.log.Info("book soft deleted", "book_id", id)
	return nil
}

func (s *Service) UpdateInventory(ctx context.Context, bookID int64, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "UpdateInventory", trace.WithAttributes(attribute.Int64("book.id", bookID)))
	defer span.End()

	if err := domain.ValidateSetQuantity(bookID, quantity); err != nil {
		return err
	}
	msg, err := events.New(events.TypeInventoryUpdated, events.InventoryUpdated{BookID: bookID, Quantity: quantity})
	if err != nil {
		return err
	}
	ev, err := outbox.Build(events.TopicInventory, "book", strconv.FormatInt(bookID, 10), msg, tracing.Traceparent(ctx))
	if err != nil {
		return err
	}
	if err := s.repo.SetQuantity(ctx, bookID, quantity, ev); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, bookID)
	s.log.Info("inventory updated", "book_id", bookID, "quantity", quantity)
	return nil
}

func (s *Service) DecreaseInventory(ctx context.Context, bookID int64, decreaseBy int) error {
	ctx, span := s.tracer.Start(ctx, "DecreaseInventory", trace.WithAttributes(attribute.Int64("book.id", bookID)))
	defer span.End()

	if err := domain.ValidateDecrease(bookID, decreaseBy); err != nil {
		return err
	}
	left, err := s.repo.Decrease(ctx, bookID, decreaseBy)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, bookID)
	s.log.Info("inventory decreased", "book_id", bookID, "decreased_by", decreaseBy, "quantity", left)
	return nil
}

func (s *Service) GetInventoryStatus(ctx context.Context, bookID int64) (domain.StockStatus, error) {
	return s.repo.Status(ctx, bookID)
}

func (s *Service) FilterBooksByStock(ctx context.Context, minStock int) ([]domain.StockStatus, error) {
	return s.repo.FilterByMinStock(ctx, minStock)
}

// ListLowOrOutOfStockBooks includes books that have no inventory row, at 0.
func (s *Service) ListLowOrOutOfStockBooks(ctx context.Context, threshold int) ([]domain.StockStatus, error) {
	return s.repo.LowStock(ctx, threshold)
}

func (s *Service) AuditLog(ctx context.Context, bookID int64) ([]domain.LogEntry, error) {
	return s.repo.AuditLog(ctx, bookID)
}

// ApplyOrderCreated decrements stock for an OrderCreated event. When stock
// cannot cover the order nothing is decremented and StockDepleted is
// published instead; that outcome is not an error.
func (s *Service) ApplyOrderCreated(ctx context.Context, msg events.Message) (domain.ApplyResult, error) {
	var p events.OrderPayload
	if err := msg.Decode(&p); err != nil {
		return domain.ApplyResult{}, apperr.Validation("%v", err)
	}
	if len(p.Items) == 0 {
		s.log.Warn("OrderCreated without items", "order_id", p.OrderID, "event_id", msg.EventID)
		return domain.ApplyResult{}, nil
	}

	lines := make([]domain.StockLine, 0, len(p.Items))
	ids := make([]int64, 0, len(p.Items))
	for _, it := range p.Items {
		if it.Quantity <= 0 {
			return domain.ApplyResult{}, apperr.Validation("order %d: quantity for book %d must be positive", p.OrderID, it.BookID)
		}
		lines = append(lines, domain.StockLine{BookID: it.BookID, Quantity: it.Quantity})
		ids = append(ids, it.BookID)
	}

	traceparent := tracing.Traceparent(ctx)
	res, err := s.repo.ApplyOrder(ctx, msg.EventID, lines, func(depleted []events.DepletedLine) (outbox.Event, error) {
		alert, err := events.New(events.TypeStockDepleted, events.StockDepleted{OrderID: p.OrderID, UserID: p.UserID, Depleted: depleted})
		if err != nil {
			return outbox.Event{}, err
		}
		return outbox.Build(events.TopicInventory, "order", strconv.FormatInt(p.OrderID, 10), alert, traceparent)
	})
	if err != nil {
		return domain.ApplyResult{}, fmt.Errorf("apply order %d: %w", p.OrderID, err)
	}

	switch {
	case res.Duplicate:
		s.log.Info("order already applied", "order_id", p.OrderID, "event_id", msg.EventID)
	case len(res.Depleted) > 0:
		s.log.Error("insufficient stock for order, nothing decremented", "order_id", p.OrderID, "depleted", res.Depleted)
	default:
		s.cache.Invalidate(ctx, ids...)
		s.log.Info("stock decremented for order", "order_id", p.OrderID, "lines", len(lines))
	}
	return res, nil
}

type noCache struct{}

func (noCache) Get(context.Context, int64) (domain.BookView, bool) { return domain.BookView{}, false }
func (noCache) Set(context.Context, domain.BookView)               {}
func (noCache) Invalidate(context.Context, ...int64)               {}
