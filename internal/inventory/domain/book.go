package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/pkg/apperr"
)

type Book struct {
	ID        int64
	Title     string
	Author    string
	Genre     string
	ISBN      string
	Price     decimal.Decimal
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookView is a book with its current stock level.
type BookView struct {
	Book
	Quantity int
}

func NewBook(title, author, genre, isbn string, price decimal.Decimal) (Book, error) {
	b := Book{
		Title:  strings.TrimSpace(title),
		Author: strings.TrimSpace(author),
		Genre:  strings.TrimSpace(genre),
		ISBN:   strings.TrimSpace(isbn),
		Price:  price,
	}
	switch {
	case b.Title == "" || len(b.Title) > 255:
		return Book{}, apperr.Validation("Title is required and must be less than 255 characters")
	case b.Author == "" || len(b.Author) > 255:
		return Book{}, apperr.Validation("Author is required and must be less than 255 characters")
	case b.Genre == "" || len(b.Genre) > 100:
		return Book{}, apperr.Validation("Genre is required and must be less than 100 characters")
	case b.ISBN == "" || len(b.ISBN) > 20:
		return Book{}, apperr.Validation("ISBN is required and must be less than 20 characters")
	case !b.Price.IsPositive():
		return Book{}, apperr.Validation("Price must be positive")
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	return b, nil
}
