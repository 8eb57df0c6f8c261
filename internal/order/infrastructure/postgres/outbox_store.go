package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/orderflow/pkg/outbox"
)

// MaxOutboxRetries is how many failed publishes an event gets before it is
// parked as failed.
const MaxOutboxRetries = 10

const (
	lockOutboxSQL = `
		SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
		FROM outbox
		WHERE status = 'pending'
		   OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1`
	leaseOutboxSQL = `
		UPDATE outbox
		SET status = 'in_progress', relay_id = $1, lease_until = now() + $2 * interval '1 millisecond'
		WHERE id = ANY($3)`
	markSentSQL   = `UPDATE outbox SET status = 'sent', lease_until = NULL WHERE id = ANY($1)`
	markFailedSQL = `
		UPDATE outbox
		SET retry_count = retry_count + 1,
		    last_error = $2,
		    lease_until = NULL,
		    status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1`
	extendLeaseSQL = `
		UPDATE outbox
		SET lease_until = now() + $1 * interval '1 millisecond'
		WHERE id = ANY($2) AND relay_id = $3 AND status = 'in_progress'`
	releaseSQL = `
		UPDATE outbox
		SET status = 'pending', relay_id = NULL, lease_until = NULL
		WHERE id = ANY($1) AND relay_id = $2 AND status = 'in_progress'`
)

// OutboxStore leases outbox rows to a relay. A lease that runs out without a
// MarkSent or MarkFailed puts the row back up for grabs.
type OutboxStore struct {
	log *slog.Logger
	db  DB
}

func NewOutboxStore(log *slog.Logger, db DB) *OutboxStore {
	return &OutboxStore{log: log, db: db}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, lockOutboxSQL, batchSize)
	if err != nil {
		return nil, fmt.Errorf("select outbox batch: %w", err)
	}

	var events []outbox.Event
	for rows.Next() {
		var (
			e       outbox.Event
			headers map[string]string
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &headers, &e.Traceparent, &e.CreatedAt, &e.RetryCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Headers = headers
		e.Status = outbox.StatusInProgress
		e.RelayID = relayID
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox batch: %w", err)
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	if _, err := tx.Exec(ctx, leaseOutboxSQL, relayID, lease.Milliseconds(), ids); err != nil {
		return nil, fmt.Errorf("lease outbox batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit outbox tx: %w", err)
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	if _, err := s.db.Exec(ctx, markSentSQL, ids); err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if _, err := s.db.Exec(ctx, markFailedSQL, id, errMsg, MaxOutboxRetries); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	s.log.Warn("outbox event publish failed", "event_id", id, "err", errMsg)
	return nil
}

func (s *OutboxStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	if _, err := s.db.Exec(ctx, extendLeaseSQL, lease.Milliseconds(), ids, relayID); err != nil {
		return fmt.Errorf("extend outbox lease: %w", err)
	}
	return nil
}

func (s *OutboxStore) Release(ctx context.Context, relayID string, ids []int64) error {
	if _, err := s.db.Exec(ctx, releaseSQL, ids, relayID); err != nil {
		return fmt.Errorf("release outbox rows: %w", err)
	}
	return nil
}
