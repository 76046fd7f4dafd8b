package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/internal/order/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/outbox"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memOrders struct {
	mu     sync.Mutex
	next   int64
	orders map[int64]domain.Order
	outbox []outbox.Event
	failOn string
}

func newMemOrders() *memOrders { return &memOrders{orders: map[int64]domain.Order{}} }

func (m *memOrders) Create(_ context.Context, o domain.Order, event EventFunc) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "create" {
		return domain.Order{}, errors.New("db unavailable")
	}
	m.next++
	o.ID = m.next
	ev, err := event(o)
	if err != nil {
		return domain.Order{}, err
	}
	m.orders[o.ID] = o
	m.outbox = append(m.outbox, ev)
	return o, nil
}

func (m *memOrders) MarkPaid(_ context.Context, id int64, event EventFunc) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, apperr.ErrNotFound
	}
	o.MarkPaid()
	ev, err := event(o)
	if err != nil {
		return domain.Order{}, err
	}
	m.orders[id] = o
	m.outbox = append(m.outbox, ev)
	return o, nil
}

func (m *memOrders) Get(_ context.Context, id int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, apperr.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memCarts struct {
	mu        sync.Mutex
	carts     map[int64]domain.Cart
	deleteErr error
}

func newMemCarts() *memCarts { return &memCarts{carts: map[int64]domain.Cart{}} }

func (m *memCarts) Get(_ context.Context, userID int64) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return domain.Cart{}, apperr.ErrNotFound
	}
	c.Lines = append([]domain.CartLine(nil), c.Lines...)
	return c, nil
}

func (m *memCarts) Save(_ context.Context, c domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Lines = append([]domain.CartLine(nil), c.Lines...)
	m.carts[c.UserID] = c
	return nil
}

func (m *memCarts) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.carts, userID)
	return nil
}

type stubPrices struct {
	prices map[int64]decimal.Decimal
	asked  [][]int64
}

func (s *stubPrices) GetPrice(_ context.Context, id int64) (decimal.Decimal, error) {
	return s.prices[id], nil
}

func (s *stubPrices) GetPrices(_ context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	s.asked = append(s.asked, ids)
	out := map[int64]decimal.Decimal{}
	for _, id := range ids {
		if p, ok := s.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
