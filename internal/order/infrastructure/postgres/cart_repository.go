package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/bookstore/internal/order/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
)

type CartRepository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewCartRepository(log *slog.Logger, pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{log: log, pool: pool}
}

func (r *CartRepository) Get(ctx context.Context, userID int64) (domain.Cart, error) {
	var c domain.Cart
	err := r.pool.QueryRow(ctx, `SELECT user_id, updated_at FROM carts WHERE user_id=$1`, userID).Scan(&c.UserID, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cart{}, apperr.NotFound("Cart not found for user: %d", userID)
	}
	if err != nil {
		return domain.Cart{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT book_id, quantity FROM cart_items WHERE user_id=$1 ORDER BY line_no`, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	c.Lines, err = pgx.CollectRows(rows, pgx.RowToStructByPos[domain.CartLine])
	if err != nil {
		return domain.Cart{}, err
	}
	return c, nil
}

// Save replaces the stored cart with c as a whole.
func (r *CartRepository) Save(ctx context.Context, c domain.Cart) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO carts (user_id, updated_at) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at=$2`, c.UserID, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, c.UserID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range c.Lines {
		batch.Queue(`INSERT INTO cart_items (user_id, line_no, book_id, quantity) VALUES ($1,$2,$3,$4)`,
			c.UserID, i, l.BookID, l.Quantity)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert cart items: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *CartRepository) Delete(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE user_id=$1`, userID)
	return err
}
