package domain

import (
	"time"

	"github.com/dmehra2102/bookstore/pkg/apperr"
)

type CartLine struct {
	BookID   int64
	Quantity int
}

// Cart holds at most one line per book.
type Cart struct {
	UserID    int64
	Lines     []CartLine
	UpdatedAt time.Time
}

func NewCart(userID int64) Cart {
	return Cart{UserID: userID, UpdatedAt: time.Now().UTC()}
}

func (c *Cart) Add(bookID int64, quantity int) error {
	if bookID <= 0 {
		return apperr.Validation("bookId must be positive")
	}
	if quantity <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	c.UpdatedAt = time.Now().UTC()
	for i := range c.Lines {
		if c.Lines[i].BookID == bookID {
			c.Lines[i].Quantity += quantity
			return nil
		}
	}
	c.Lines = append(c.Lines, CartLine{BookID: bookID, Quantity: quantity})
	return nil
}

// Remove reports whether a line was dropped.
func (c *Cart) Remove(bookID int64) bool {
	for i := range c.Lines {
		if c.Lines[i].BookID == bookID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

func (c Cart) IsEmpty() bool { return len(c.Lines) == 0 }

func (c Cart) BookIDs() []int64 {
	ids := make([]int64, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.BookID)
	}
	return ids
}
