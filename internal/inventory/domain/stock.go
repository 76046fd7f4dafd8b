package domain

import (
	"sort"
	"time"

	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/events"
)

type Action string

const (
	ActionCreate     Action = "CREATE"
	ActionUpdate     Action = "UPDATE"
	ActionDecrease   Action = "DECREASE"
	ActionSoftDelete Action = "SOFT_DELETE"
)

// LogEntry is append-only. Quantity is the stock level after the action.
type LogEntry struct {
	ID        int64
	BookID    int64
	Action    Action
	Quantity  int
	Timestamp time.Time
}

type StockStatus struct {
	BookID   int64
	Title    string
	Quantity int
}

type StockLine struct {
	BookID   int64
	Quantity int
}

// ApplyResult reports what happened to an order's decrement.
type ApplyResult struct {
	Duplicate bool
	Depleted  []events.DepletedLine
}

func ValidateSetQuantity(bookID int64, quantity int) error {
	if bookID <= 0 {
		return apperr.Validation("Book ID is required")
	}
	if quantity < 0 {
		return apperr.Validation("Quantity must be zero or positive")
	}
	return nil
}

func ValidateDecrease(bookID int64, decreaseBy int) error {
	if bookID <= 0 {
		return apperr.Validation("Book ID is required")
	}
	if decreaseBy < 0 {
		return apperr.Validation("Decrease amount must be zero or positive")
	}
	return nil
}

// Decrease returns the new level or InsufficientStock, leaving current as is.
func Decrease(current, by int) (int, error) {
	if by > current {
		return current, apperr.InsufficientStock("Insufficient stock: requested %d, available %d", by, current)
	}
	return current - by, nil
}

// MergeLines folds repeated books into one line each, ordered by book id so
// row locks are always taken in the same order.
func MergeLines(lines []StockLine) []StockLine {
	totals := map[int64]int{}
	for _, l := range lines {
		totals[l.BookID] += l.Quantity
	}
	out := make([]StockLine, 0, len(totals))
	for id, q := range totals {
		out = append(out, StockLine{BookID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out
}

// Shortages lists every merged line the available stock cannot cover.
// Books missing from stock count as zero available.
func Shortages(stock map[int64]int, merged []StockLine) []events.DepletedLine {
	var short []events.DepletedLine
	for _, l := range merged {
		avail := stock[l.BookID]
		if l.Quantity > avail {
			short = append(short, events.DepletedLine{BookID: l.BookID, Requested: l.Quantity, Available: avail})
		}
	}
	return short
}
