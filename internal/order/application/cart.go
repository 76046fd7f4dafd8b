package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/bookstore/internal/order/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
)

// CartService keeps no locks; two concurrent writers to one cart resolve as
// last write wins.
type CartService struct {
	log   *slog.Logger
	carts CartRepository
}

func NewCartService(log *slog.Logger, carts CartRepository) *CartService {
	return &CartService{log: log, carts: carts}
}

func (s *CartService) load(ctx context.Context, userID int64) (domain.Cart, bool, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return domain.NewCart(userID), false, nil
		}
		return domain.Cart{}, false, fmt.Errorf("load cart: %w", err)
	}
	return c, true, nil
}

func (s *CartService) AddToCart(ctx context.Context, userID, bookID int64, quantity int) (domain.Cart, error) {
	if userID <= 0 {
		return domain.Cart{}, apperr.Validation("userId must be positive")
	}
	c, _, err := s.load(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := c.Add(bookID, quantity); err != nil {
		return domain.Cart{}, err
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	s.log.Info("book added to cart", "user_id", userID, "book_id", bookID, "quantity", quantity)
	return c, nil
}

func (s *CartService) RemoveFromCart(ctx context.Context, userID, bookID int64) (domain.Cart, error) {
	c, exists, err := s.load(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !exists || !c.Remove(bookID) {
		return c, nil
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	s.log.Info("book removed from cart", "user_id", userID, "book_id", bookID)
	return c, nil
}

func (s *CartService) ViewCart(ctx context.Context, userID int64) (domain.Cart, error) {
	c, _, err := s.load(ctx, userID)
	return c, err
}

func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	if err := s.carts.Delete(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.log.Info("cart cleared", "user_id", userID)
	return nil
}
