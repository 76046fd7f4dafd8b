package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/bookstore/internal/inventory/domain"
)

type BookCache struct {
	log *slog.Logger
	rdb redis.Cmdable
	ttl time.Duration
}

func NewBookCache(log *slog.Logger, rdb redis.Cmdable, ttl time.Duration) *BookCache {
	return &BookCache{log: log, rdb: rdb, ttl: ttl}
}

func key(id int64) string { return fmt.Sprintf("book:%d", id) }

func (c *BookCache) Get(ctx context.Context, id int64) (domain.BookView, bool) {
	raw, err := c.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BookView{}, false
	}
	if err != nil {
		c.log.Warn("book cache read failed", "book_id", id, "err", err)
		return domain.BookView{}, false
	}
	var v domain.BookView
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("dropping corrupt cache entry", "book_id", id, "err", err)
		c.Invalidate(ctx, id)
		return domain.BookView{}, false
	}
	return v, true
}

func (c *BookCache) Set(ctx context.Context, v domain.BookView) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("book cache encode failed", "book_id", v.ID, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, key(v.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("book cache write failed", "book_id", v.ID, "err", err)
	}
}

func (c *BookCache) Invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("book cache invalidate failed", "book_ids", ids, "err", err)
	}
}
