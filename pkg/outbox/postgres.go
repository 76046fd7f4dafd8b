package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/bookstore/pkg/events"
)

const Schema = `
CREATE TABLE IF NOT EXISTS outbox (
	id             BIGSERIAL PRIMARY KEY,
	topic          TEXT        NOT NULL,
	aggregate_type TEXT        NOT NULL,
	aggregate_id   TEXT        NOT NULL,
	type           TEXT        NOT NULL,
	payload        BYTEA       NOT NULL,
	headers        JSONB       NOT NULL DEFAULT '{}'::jsonb,
	traceparent    TEXT        NOT NULL DEFAULT '',
	status         TEXT        NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until    TIMESTAMPTZ,
	retry_count    INT         NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, id);
CREATE INDEX IF NOT EXISTS outbox_aggregate_idx ON outbox (topic, aggregate_id, id);
`

const maxAttempts = 10

// Build wraps a domain event into an outbox row. The aggregate id doubles as
// the Kafka key so one aggregate's events stay ordered within a partition.
func Build(topic, aggregateType, aggregateID string, msg events.Message, traceparent string) (Event, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", msg.EventType, err)
	}
	return Event{
		Topic:         topic,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          msg.EventType,
		Payload:       payload,
		Headers:       map[string]string{HeaderEventID: msg.EventID},
		Traceparent:   traceparent,
	}, nil
}

// Insert must be called with the transaction that carries the state change.
func Insert(ctx context.Context, tx pgx.Tx, e Event) error {
	headers := e.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := tx.Exec(ctx, `INSERT INTO outbox (topic, aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.Topic, e.AggregateType, e.AggregateID, e.Type, e.Payload, headers, e.Traceparent, string(StatusPending))
	if err != nil {
		return fmt.Errorf("insert outbox %s: %w", e.Type, err)
	}
	return nil
}

type PGStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewPGStore(log *slog.Logger, pool *pgxpool.Pool) *PGStore {
	return &PGStore{log: log, pool: pool}
}

func (s *PGStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Rows whose lease lapsed belong to a relay that died mid-batch. A row is
	// only eligible once every earlier row of its aggregate is sent or dead, so
	// a batch holds at most one row per key and a failed send holds back the
	// aggregate's later events.
	rows, err := tx.Query(ctx, `
		SELECT o.id, o.topic, o.aggregate_type, o.aggregate_id, o.type, o.payload, o.headers, o.traceparent, o.created_at, o.retry_count
		FROM outbox o
		WHERE (o.status = $2 OR (o.status = $3 AND o.lease_until < now()))
		  AND NOT EXISTS (
			SELECT 1 FROM outbox prev
			WHERE prev.topic = o.topic
			  AND prev.aggregate_id = o.aggregate_id
			  AND prev.id < o.id
			  AND prev.status IN ($2, $3))
		ORDER BY o.id
		FOR UPDATE OF o SKIP LOCKED
		LIMIT $1
	`, batchSize, string(StatusPending), string(StatusInProgress))
	if err != nil {
		return nil, err
	}

	var batch []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.Headers, &e.Traceparent, &e.CreatedAt, &e.Attempts); err != nil {
			rows.Close()
			return nil, err
		}
		e.Status = StatusInProgress
		batch = append(batch, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `UPDATE outbox SET status=$4, relay_id=$1, lease_until=now() + make_interval(secs => $2) WHERE id = ANY($3)`,
		relayID, lease.Seconds(), pendingIDs(batch), string(StatusInProgress))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *PGStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status=$2, lease_until=NULL WHERE id = ANY($1)`, ids, string(StatusSent))
	return err
}

// MarkFailed puts the row back in the queue until it has used up its attempts.
func (s *PGStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox
		SET status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE $5 END,
		    last_error=$2, retry_count=retry_count+1, lease_until=NULL
		WHERE id=$1`, id, errMsg, maxAttempts, string(StatusFailed), string(StatusPending))
	return err
}

func (s *PGStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET lease_until=now() + make_interval(secs => $1) WHERE id = ANY($2) AND relay_id=$3`, lease.Seconds(), ids, relayID)
	return err
}
