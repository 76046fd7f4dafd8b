package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/internal/order/application"
	"github.com/dmehra2102/bookstore/internal/order/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Create writes the order, its lines and its outbox event in one transaction.
func (r *Repository) Create(ctx context.Context, o domain.Order, event application.EventFunc) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `INSERT INTO orders (user_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		o.UserID, string(o.Status), o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`INSERT INTO order_items (order_id, line_no, book_id, quantity, price)
			VALUES ($1,$2,$3,$4,$5::numeric)`,
			o.ID, i, l.BookID, l.Quantity, l.Price.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Order{}, fmt.Errorf("insert order items: %w", err)
	}

	if err := r.enqueue(ctx, tx, o, event); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) MarkPaid(ctx context.Context, id int64, event application.EventFunc) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := getOrder(ctx, tx, id, true)
	if err != nil {
		return domain.Order{}, err
	}
	o.MarkPaid()
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, id, string(o.Status), o.UpdatedAt); err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if err := r.enqueue(ctx, tx, o, event); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (domain.Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, status, created_at, updated_at FROM orders WHERE user_id=$1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	byID := make(map[int64]*domain.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for i := range orders {
		byID[orders[i].ID] = &orders[i]
		ids = append(ids, orders[i].ID)
	}
	lineRows, err := r.pool.Query(ctx, `SELECT order_id, book_id, quantity, price::text FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var orderID int64
		l, err := scanLine(lineRows, &orderID)
		if err != nil {
			return nil, err
		}
		byID[orderID].Lines = append(byID[orderID].Lines, l)
	}
	return orders, lineRows.Err()
}

func (r *Repository) enqueue(ctx context.Context, tx pgx.Tx, o domain.Order, event application.EventFunc) error {
	ev, err := event(o)
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, tx, ev)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getOrder(ctx context.Context, q querier, id int64, forUpdate bool) (domain.Order, error) {
	sql := `SELECT id, user_id, status, created_at, updated_at FROM orders WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var o domain.Order
	var status string
	err := q.QueryRow(ctx, sql, id).Scan(&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperr.NotFound("Order not found with id: %d", id)
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)

	rows, err := q.Query(ctx, `SELECT order_id, book_id, quantity, price::text FROM order_items WHERE order_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID int64
		l, err := scanLine(rows, &orderID)
		if err != nil {
			return domain.Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func scanOrder(row pgx.CollectableRow) (domain.Order, error) {
	var o domain.Order
	var status string
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanLine(rows pgx.Rows, orderID *int64) (domain.OrderLine, error) {
	var l domain.OrderLine
	var price string
	if err := rows.Scan(orderID, &l.BookID, &l.Quantity, &price); err != nil {
		return domain.OrderLine{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.OrderLine{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	l.Price = p
	return l, nil
}
