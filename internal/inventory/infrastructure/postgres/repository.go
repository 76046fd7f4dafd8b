package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/internal/inventory/application"
	"github.com/dmehra2102/bookstore/internal/inventory/domain"
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

func (r *Repository) CreateBook(ctx context.Context, b domain.Book, quantity int) (domain.BookView, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.BookView{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `INSERT INTO books (title, author, genre, isbn, price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::numeric,$6,$7) RETURNING id`,
		b.Title, b.Author, b.Genre, b.ISBN, b.Price.String(), b.CreatedAt, b.UpdatedAt).Scan(&b.ID)
	if err != nil {
		return domain.BookView{}, fmt.Errorf("insert book: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO books_inventory (book_id, quantity, updated_at) VALUES ($1,$2,$3)`,
		b.ID, quantity, b.UpdatedAt); err != nil {
		return domain.BookView{}, fmt.Errorf("insert inventory: %w", err)
	}
	if err := appendLog(ctx, tx, b.ID, domain.ActionCreate, quantity); err != nil {
		return domain.BookView{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.BookView{}, err
	}
	return domain.BookView{Book: b, Quantity: quantity}, nil
}

func (r *Repository) GetBook(ctx context.Context, id int64) (domain.BookView, error) {
	var v domain.BookView
	var price string
	err := r.pool.QueryRow(ctx, `SELECT b.id, b.title, b.author, b.genre, b.isbn, b.price::text, b.created_at, b.updated_at,
			COALESCE(i.quantity, 0)
		FROM books b LEFT JOIN books_inventory i ON i.book_id = b.id
		WHERE b.id=$1 AND NOT b.is_deleted`, id).
		Scan(&v.ID, &v.Title, &v.Author, &v.Genre, &v.ISBN, &price, &v.CreatedAt, &v.UpdatedAt, &v.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookView{}, apperr.NotFound("Book not found with id: %d", id)
	}
	if err != nil {
		return domain.BookView{}, err
	}
	if v.Price, err = parsePrice(price); err != nil {
		return domain.BookView{}, err
	}
	return v, nil
}

func (r *Repository) Prices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, price::text FROM books WHERE id = ANY($1) AND NOT is_deleted`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]decimal.Decimal, len(ids))
	for rows.Next() {
		var id int64
		var price string
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		p, err := parsePrice(price)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, rows.Err()
}

func (r *Repository) SoftDeleteBook(ctx context.Context, id int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var qty int
	err = tx.QueryRow(ctx, `UPDATE books SET is_deleted=TRUE, updated_at=now() WHERE id=$1 AND NOT is_deleted
		RETURNING COALESCE((SELECT quantity FROM books_inventory WHERE book_id=$1), 0)`, id).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("Book not found with id: %d", id)
	}
	if err != nil {
		return fmt.Errorf("soft delete book: %w", err)
	}
	if err := appendLog(ctx, tx, id, domain.ActionSoftDelete, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetQuantity upserts the level, appends an UPDATE log and enqueues event,
// all in one transaction.
func (r *Repository) SetQuantity(ctx context.Context, bookID int64, quantity int, event outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := lockBook(ctx, tx, bookID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO books_inventory (book_id, quantity, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (book_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=EXCLUDED.updated_at`,
		bookID, quantity)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	if err := appendLog(ctx, tx, bookID, domain.ActionUpdate, quantity); err != nil {
		return err
	}
	if err := outbox.Insert(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Decrease(ctx context.Context, bookID int64, by int) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := lockBook(ctx, tx, bookID); err != nil {
		return 0, err
	}
	var current int
	err = tx.QueryRow(ctx, `SELECT quantity FROM books_inventory WHERE book_id=$1 FOR UPDATE`, bookID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("Inventory not found for book ID: %d", bookID)
	}
	if err != nil {
		return 0, err
	}
	left, err := domain.Decrease(current, by)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `UPDATE books_inventory SET quantity=$2, updated_at=now() WHERE book_id=$1`, bookID, left); err != nil {
		return 0, fmt.Errorf("decrease inventory: %w", err)
	}
	if err := appendLog(ctx, tx, bookID, domain.ActionDecrease, left); err != nil {
		return 0, err
	}
	return left, tx.Commit(ctx)
}

func (r *Repository) Status(ctx context.Context, bookID int64) (domain.StockStatus, error) {
	var s domain.StockStatus
	err := r.pool.QueryRow(ctx, `SELECT b.id, b.title, COALESCE(i.quantity, 0)
		FROM books b LEFT JOIN books_inventory i ON i.book_id = b.id
		WHERE b.id=$1 AND NOT b.is_deleted`, bookID).Scan(&s.BookID, &s.Title, &s.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockStatus{}, apperr.NotFound("Book not found with id: %d", bookID)
	}
	return s, err
}

func (r *Repository) FilterByMinStock(ctx context.Context, minStock int) ([]domain.StockStatus, error) {
	return r.statuses(ctx, `SELECT b.id, b.title, i.quantity
		FROM books b JOIN books_inventory i ON i.book_id = b.id
		WHERE NOT b.is_deleted AND i.quantity >= $1 ORDER BY b.id`, minStock)
}

func (r *Repository) LowStock(ctx context.Context, threshold int) ([]domain.StockStatus, error) {
	return r.statuses(ctx, `SELECT b.id, b.title, COALESCE(i.quantity, 0)
		FROM books b LEFT JOIN books_inventory i ON i.book_id = b.id
		WHERE NOT b.is_deleted AND COALESCE(i.quantity, 0) <= $1 ORDER BY b.id`, threshold)
}

func (r *Repository) statuses(ctx context.Context, sql string, arg int) ([]domain.StockStatus, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StockStatus, error) {
		var s domain.StockStatus
		err := row.Scan(&s.BookID, &s.Title, &s.Quantity)
		return s, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.StockStatus{}
	}
	return out, nil
}

func (r *Repository) AuditLog(ctx context.Context, bookID int64) ([]domain.LogEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, book_id, action, quantity, timestamp FROM inventory_logs WHERE book_id=$1 ORDER BY id`, bookID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LogEntry, error) {
		var e domain.LogEntry
		var action string
		err := row.Scan(&e.ID, &e.BookID, &action, &e.Quantity, &e.Timestamp)
		e.Action = domain.Action(action)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.LogEntry{}
	}
	return out, nil
}

// ApplyOrder locks the inventory rows in book id order, so two orders that
// share books cannot deadlock. On a shortage no row is decremented, but the
// event id and the alert row still commit.
func (r *Repository) ApplyOrder(ctx context.Context, eventID string, lines []domain.StockLine, onShortage application.ShortageFunc) (domain.ApplyResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ApplyResult{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if eventID != "" {
		tag, err := tx.Exec(ctx, `INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT DO NOTHING`, eventID)
		if err != nil {
			return domain.ApplyResult{}, fmt.Errorf("record event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ApplyResult{Duplicate: true}, nil
		}
	}

	merged := domain.MergeLines(lines)
	ids := make([]int64, len(merged))
	for i, l := range merged {
		ids[i] = l.BookID
	}
	rows, err := tx.Query(ctx, `SELECT i.book_id, i.quantity
		FROM books_inventory i JOIN books b ON b.id = i.book_id
		WHERE i.book_id = ANY($1) AND NOT b.is_deleted
		ORDER BY i.book_id FOR UPDATE OF i`, ids)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	stock := make(map[int64]int, len(merged))
	for rows.Next() {
		var id int64
		var q int
		if err := rows.Scan(&id, &q); err != nil {
			rows.Close()
			return domain.ApplyResult{}, err
		}
		stock[id] = q
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ApplyResult{}, err
	}

	if short := domain.Shortages(stock, merged); len(short) > 0 {
		ev, err := onShortage(short)
		if err != nil {
			return domain.ApplyResult{}, err
		}
		if err := outbox.Insert(ctx, tx, ev); err != nil {
			return domain.ApplyResult{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return domain.ApplyResult{}, err
		}
		return domain.ApplyResult{Depleted: short}, nil
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, l := range merged {
		left := stock[l.BookID] - l.Quantity
		batch.Queue(`UPDATE books_inventory SET quantity=$2, updated_at=$3 WHERE book_id=$1`, l.BookID, left, now)
		batch.Queue(`INSERT INTO inventory_logs (book_id, action, quantity, timestamp) VALUES ($1,$2,$3,$4)`,
			l.BookID, string(domain.ActionDecrease), left, now)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.ApplyResult{}, fmt.Errorf("apply decrements: %w", err)
	}
	return domain.ApplyResult{}, tx.Commit(ctx)
}

func lockBook(ctx context.Context, tx pgx.Tx, id int64) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM books WHERE id=$1 AND NOT is_deleted FOR SHARE`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("Book not found with id: %d", id)
	}
	return err
}

func appendLog(ctx context.Context, tx pgx.Tx, bookID int64, action domain.Action, quantity int) error {
	if _, err := tx.Exec(ctx, `INSERT INTO inventory_logs (book_id, action, quantity) VALUES ($1,$2,$3)`,
		bookID, string(action), quantity); err != nil {
		return fmt.Errorf("append %s log: %w", action, err)
	}
	return nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return p, nil
}
