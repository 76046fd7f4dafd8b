package application

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/internal/inventory/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/outbox"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memStock struct {
	mu        sync.Mutex
	next      int64
	books     map[int64]domain.Book
	stock     map[int64]int
	logs      []domain.LogEntry
	processed map[string]bool
	outbox    []outbox.Event
}

func newMemStock() *memStock {
	return &memStock{books: map[int64]domain.Book{}, stock: map[int64]int{}, processed: map[string]bool{}}
}

func (m *memStock) logAction(id int64, a domain.Action, q int) {
	m.logs = append(m.logs, domain.LogEntry{ID: int64(len(m.logs) + 1), BookID: id, Action: a, Quantity: q, Timestamp: time.Now()})
}

func (m *memStock) live(id int64) (domain.Book, bool) {
	b, ok := m.books[id]
	return b, ok && !b.Deleted
}

func (m *memStock) CreateBook(_ context.Context, b domain.Book, quantity int) (domain.BookView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	b.ID = m.next
	m.books[b.ID] = b
	m.stock[b.ID] = quantity
	m.logAction(b.ID, domain.ActionCreate, quantity)
	return domain.BookView{Book: b, Quantity: quantity}, nil
}

func (m *memStock) GetBook(_ context.Context, id int64) (domain.BookView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.live(id)
	if !ok {
		return domain.BookView{}, apperr.NotFound("Book not found with id: %d", id)
	}
	return domain.BookView{Book: b, Quantity: m.stock[id]}, nil
}

func (m *memStock) Prices(_ context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64]decimal.Decimal{}
	for _, id := range ids {
		if b, ok := m.live(id); ok {
			out[id] = b.Price
		}
	}
	return out, nil
}

func (m *memStock) SoftDeleteBook(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.live(id)
	if !ok {
		return apperr.NotFound("Book not found with id: %d", id)
	}
	b.Deleted = true
	m.books[id] = b
	m.logAction(id, domain.ActionSoftDelete, m.stock[id])
	return nil
}

func (m *memStock) SetQuantity(_ context.Context, id int64, q int, ev outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(id); !ok {
		return apperr.NotFound("Book not found with id: %d", id)
	}
	m.stock[id] = q
	m.logAction(id, domain.ActionUpdate, q)
	m.outbox = append(m.outbox, ev)
	return nil
}

func (m *memStock) Decrease(_ context.Context, id int64, by int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(id); !ok {
		return 0, apperr.NotFound("Inventory not found for book ID: %d", id)
	}
	left, err := domain.Decrease(m.stock[id], by)
	if err != nil {
		return 0, err
	}
	m.stock[id] = left
	m.logAction(id, domain.ActionDecrease, left)
	return left, nil
}

func (m *memStock) Status(_ context.Context, id int64) (domain.StockStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.live(id)
	if !ok {
		return domain.StockStatus{}, apperr.NotFound("Inventory not found for book ID: %d", id)
	}
	return domain.StockStatus{BookID: id, Title: b.Title, Quantity: m.stock[id]}, nil
}

func (m *memStock) filter(keep func(int) bool) []domain.StockStatus {
	var out []domain.StockStatus
	for id, b := range m.books {
		if !b.Deleted && keep(m.stock[id]) {
			out = append(out, domain.StockStatus{BookID: id, Title: b.Title, Quantity: m.stock[id]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out
}

func (m *memStock) FilterByMinStock(_ context.Context, minStock int) ([]domain.StockStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(q int) bool { return q >= minStock }), nil
}

func (m *memStock) LowStock(_ context.Context, threshold int) ([]domain.StockStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(q int) bool { return q <= threshold }), nil
}

func (m *memStock) AuditLog(_ context.Context, id int64) ([]domain.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LogEntry
	for _, l := range m.logs {
		if l.BookID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStock) ApplyOrder(_ context.Context, eventID string, lines []domain.StockLine, onShortage ShortageFunc) (domain.ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eventID != "" {
		if m.processed[eventID] {
			return domain.ApplyResult{Duplicate: true}, nil
		}
		m.processed[eventID] = true
	}
	merged := domain.MergeLines(lines)
	avail := map[int64]int{}
	for _, l := range merged {
		if _, ok := m.live(l.BookID); ok {
			avail[l.BookID] = m.stock[l.BookID]
		}
	}
	if short := domain.Shortages(avail, merged); len(short) > 0 {
		ev, err := onShortage(short)
		if err != nil {
			return domain.ApplyResult{}, err
		}
		m.outbox = append(m.outbox, ev)
		return domain.ApplyResult{Depleted: short}, nil
	}
	for _, l := range merged {
		m.stock[l.BookID] -= l.Quantity
		m.logAction(l.BookID, domain.ActionDecrease, m.stock[l.BookID])
	}
	return domain.ApplyResult{}, nil
}

type memCache struct {
	views       map[int64]domain.BookView
	invalidated []int64
}

func newMemCache() *memCache { return &memCache{views: map[int64]domain.BookView{}} }

func (c *memCache) Get(_ context.Context, id int64) (domain.BookView, bool) {
	v, ok := c.views[id]
	return v, ok
}

func (c *memCache) Set(_ context.Context, v domain.BookView) { c.views[v.ID] = v }

func (c *memCache) Invalidate(_ context.Context, ids ...int64) {
	for _, id := range ids {
		delete(c.views, id)
		c.invalidated = append(c.invalidated, id)
	}
}
