package application

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/bookstore/internal/order/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/events"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	orders *memOrders
	carts  *memCarts
	prices *stubPrices
	svc    *Service
	cart   *CartService
}

func newFixture(prices map[int64]decimal.Decimal) fixture {
	f := fixture{
		orders: newMemOrders(),
		carts:  newMemCarts(),
		prices: &stubPrices{prices: prices},
	}
	f.svc = NewService(quiet(), f.orders, f.carts, f.prices)
	f.cart = NewCartService(quiet(), f.carts)
	return f
}

func decodeOrderEvent(t *testing.T, f fixture, i int) (events.Message, events.OrderPayload) {
	t.Helper()
	require.Greater(t, len(f.orders.outbox), i)
	ev := f.orders.outbox[i]
	assert.Equal(t, events.TopicOrders, ev.Topic)
	msg, err := events.Parse(ev.Payload)
	require.NoError(t, err)
	var p events.OrderPayload
	require.NoError(t, msg.Decode(&p))
	return msg, p
}

func TestCheckoutFromCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(map[int64]decimal.Decimal{1: d("10.00"), 2: d("5.50")})

	_, err := f.cart.AddToCart(ctx, 7, 1, 2)
	require.NoError(t, err)
	_, err = f.cart.AddToCart(ctx, 7, 2, 1)
	require.NoError(t, err)

	o, err := f.svc.CreateOrderFromCart(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, o.Status)
	require.Len(t, o.Lines, 2)
	assert.True(t, d("10.00").Equal(o.Lines[0].Price))
	assert.True(t, d("5.50").Equal(o.Lines[1].Price))
	assert.True(t, d("25.50").Equal(o.Total()))

	msg, p := decodeOrderEvent(t, f, 0)
	assert.Equal(t, events.TypeOrderCreated, msg.EventType)
	assert.Equal(t, o.ID, p.OrderID)
	assert.Equal(t, int64(7), p.UserID)
	assert.Len(t, p.Items, 2)

	cart, err := f.cart.ViewCart(ctx, 7)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestCheckoutEmptyCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	_, err := f.cart.AddToCart(ctx, 7, 1, 1)
	require.NoError(t, err)
	_, err = f.cart.RemoveFromCart(ctx, 7, 1)
	require.NoError(t, err)

	_, err = f.svc.CreateOrderFromCart(ctx, 7)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.orders.outbox)
}

func TestCheckoutWithoutCart(t *testing.T) {
	_, err := newFixture(nil).svc.CreateOrderFromCart(context.Background(), 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCheckoutMissingPriceNamesBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(map[int64]decimal.Decimal{1: d("10.00")})

	_, err := f.cart.AddToCart(ctx, 7, 1, 1)
	require.NoError(t, err)
	_, err = f.cart.AddToCart(ctx, 7, 2, 1)
	require.NoError(t, err)

	_, err = f.svc.CreateOrderFromCart(ctx, 7)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Contains(t, err.Error(), "2")
	assert.Empty(t, f.orders.orders)

	cart, err := f.cart.ViewCart(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 2, "cart must survive a failed checkout")
}

func TestCheckoutRejectsFallbackZeroPrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(map[int64]decimal.Decimal{1: decimal.Zero})

	_, err := f.cart.AddToCart(ctx, 7, 1, 1)
	require.NoError(t, err)

	_, err = f.svc.CreateOrderFromCart(ctx, 7)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Empty(t, f.orders.orders)
}

func TestCheckoutNoPricesAtAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(map[int64]decimal.Decimal{})

	_, err := f.cart.AddToCart(ctx, 7, 1, 1)
	require.NoError(t, err)

	_, err = f.svc.CreateOrderFromCart(ctx, 7)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Contains(t, err.Error(), "Failed to retrieve book prices")
}

func TestCheckoutKeepsOrderWhenCartCleanupFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(map[int64]decimal.Decimal{1: d("3.00")})

	_, err := f.cart.AddToCart(ctx, 7, 1, 1)
	require.NoError(t, err)
	f.carts.deleteErr = errors.New("db blip")

	o, err := f.svc.CreateOrderFromCart(ctx, 7)
	require.NoError(t, err)
	assert.NotZero(t, o.ID)
}

func TestCheckoutStoreFailurePublishesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(map[int64]decimal.Decimal{1: d("3.00")})
	f.orders.failOn = "create"

	_, err := f.cart.AddToCart(ctx, 7, 1, 1)
	require.NoError(t, err)

	_, err = f.svc.CreateOrderFromCart(ctx, 7)
	require.Error(t, err)
	assert.Empty(t, f.orders.outbox)

	cart, err := f.cart.ViewCart(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
}

func TestCreateOrderDirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	o, err := f.svc.CreateOrder(ctx, 3, []domain.OrderLine{{BookID: 1, Quantity: 1, Price: d("12.00")}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, o.Status)
	assert.Len(t, f.orders.outbox, 1)

	_, err = f.svc.CreateOrder(ctx, 3, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateOrder(ctx, 3, []domain.OrderLine{{BookID: 1, Quantity: 1, Price: decimal.Zero}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Len(t, f.orders.outbox, 1)
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	o, err := f.svc.CreateOrder(ctx, 3, []domain.OrderLine{{BookID: 1, Quantity: 2, Price: d("4.00")}})
	require.NoError(t, err)

	paid, err := f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)

	status, err := f.svc.GetOrderStatus(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, status)

	msg, p := decodeOrderEvent(t, f, 1)
	assert.Equal(t, events.TypeOrderPaid, msg.EventType)
	assert.Equal(t, o.ID, p.OrderID)
	require.Len(t, p.Items, 1)
	assert.True(t, d("4.00").Equal(p.Items[0].Price))

	_, err = f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, f.orders.outbox, 3, "re-confirming republishes OrderPaid")
}

func TestConfirmPaymentUnknownOrder(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.ConfirmPayment(context.Background(), 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.orders.outbox)
}

func TestGetOrderStatusUnknown(t *testing.T) {
	_, err := newFixture(nil).svc.GetOrderStatus(context.Background(), 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOrderHistoryIsPerUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	line := []domain.OrderLine{{BookID: 1, Quantity: 1, Price: d("1.00")}}

	for _, u := range []int64{1, 2, 1} {
		_, err := f.svc.CreateOrder(ctx, u, line)
		require.NoError(t, err)
	}

	hist, err := f.svc.GetOrderHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Less(t, hist[0].ID, hist[1].ID)

	none, err := f.svc.GetOrderHistory(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, none)
}
