package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/pkg/apperr"
)

type OrderStatus string

const (
	StatusCreated OrderStatus = "CREATED"
	StatusPaid    OrderStatus = "PAID"
)

// PriceScale matches the NUMERIC(10,2) price column. Finer prices are
// rejected, never rounded.
const PriceScale = 2

var maxPrice = decimal.RequireFromString("99999999.99")

// OrderLine prices are captured when the order is placed and never
// recomputed.
type OrderLine struct {
	BookID   int64
	Quantity int
	Price    decimal.Decimal
}

type Order struct {
	ID        int64
	UserID    int64
	Lines     []OrderLine
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewOrder(userID int64, lines []OrderLine) (Order, error) {
	if userID <= 0 {
		return Order{}, apperr.Validation("userId must be positive")
	}
	if len(lines) == 0 {
		return Order{}, apperr.Validation("order must contain at least one item")
	}
	for _, l := range lines {
		if l.BookID <= 0 {
			return Order{}, apperr.Validation("bookId must be positive")
		}
		if l.Quantity <= 0 {
			return Order{}, apperr.Validation("quantity for book %d must be positive", l.BookID)
		}
		if !l.Price.IsPositive() {
			return Order{}, apperr.Validation("price for book %d must be positive", l.BookID)
		}
		if !l.Price.Equal(l.Price.Round(PriceScale)) || l.Price.GreaterThan(maxPrice) {
			return Order{}, apperr.Validation("price for book %d must have at most %d decimal places and fit NUMERIC(10,2)", l.BookID, PriceScale)
		}
	}
	now := time.Now().UTC()
	return Order{
		UserID:    userID,
		Lines:     append([]OrderLine(nil), lines...),
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkPaid is allowed from any status; confirming twice keeps the order PAID.
func (o *Order) MarkPaid() {
	o.Status = StatusPaid
	o.UpdatedAt = time.Now().UTC()
}

func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}
