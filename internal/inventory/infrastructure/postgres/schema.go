package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/bookstore/pkg/outbox"
)

//go:embed schema.sql
var schema string

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema+outbox.Schema); err != nil {
		return fmt.Errorf("apply inventory schema: %w", err)
	}
	return nil
}
