package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// sequenceLockClass namespaces the advisory locks taken when a month has no
// counter row yet.
const sequenceLockClass int32 = 0x4f4e

const (
	selectMonthSequenceSQL = `
		SELECT id, sequence_number
		FROM order_number_sequences
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY sequence_number DESC
		LIMIT 1
		FOR UPDATE`
	updateSequenceSQL    = `UPDATE order_number_sequences SET sequence_number = $1, updated_at = $2 WHERE id = $3`
	lockMonthSQL         = `SELECT pg_advisory_xact_lock($1::int, $2::int)`
	selectMaxSequenceSQL = `SELECT COALESCE(MAX(sequence_number), 0) FROM order_number_sequences`
	insertSequenceSQL    = `INSERT INTO order_number_sequences (sequence_number, created_at, updated_at) VALUES ($1, $2, $2)`
)

// Sequence allocates order numbers from the order_number_sequences table.
type Sequence struct {
	log *slog.Logger
	db  DB
}

func NewSequence(log *slog.Logger, db DB) *Sequence {
	return &Sequence{log: log, db: db}
}

// NextOrderNumber returns the next number for the month containing at.
//
// The month's counter row is selected FOR UPDATE, so concurrent callers in
// the same month queue on the row lock and each sees the previous caller's
// committed value. When the month has no row yet, a per-month advisory lock
// serialises the callers racing to create it; the new row starts at the
// global maximum plus one so raw numbers keep increasing across months.
func (s *Sequence) NextOrderNumber(ctx context.Context, at time.Time) (int64, error) {
	at = at.UTC()
	from := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin sequence tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	id, current, found, err := lockMonthRow(ctx, tx, from, to)
	if err != nil {
		return 0, err
	}
	if !found {
		if _, err := tx.Exec(ctx, lockMonthSQL, sequenceLockClass, monthKey(from)); err != nil {
			return 0, fmt.Errorf("lock sequence month: %w", err)
		}
		id, current, found, err = lockMonthRow(ctx, tx, from, to)
		if err != nil {
			return 0, err
		}
	}

	var next int64
	if found {
		next = current + 1
		if _, err := tx.Exec(ctx, updateSequenceSQL, next, at, id); err != nil {
			return 0, fmt.Errorf("update sequence: %w", err)
		}
	} else {
		var top int64
		if err := tx.QueryRow(ctx, selectMaxSequenceSQL).Scan(&top); err != nil {
			return 0, fmt.Errorf("select max sequence: %w", err)
		}
		next = top + 1
		if _, err := tx.Exec(ctx, insertSequenceSQL, next, at); err != nil {
			return 0, fmt.Errorf("insert sequence: %w", err)
		}
		s.log.Info("order number sequence started", "month", from.Format("2006-01"), "first", next)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit sequence tx: %w", err)
	}
	return next, nil
}

func lockMonthRow(ctx context.Context, tx pgx.Tx, from, to time.Time) (id, current int64, found bool, err error) {
	err = tx.QueryRow(ctx, selectMonthSequenceSQL, from, to).Scan(&id, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("select sequence for update: %w", err)
	}
	return id, current, true, nil
}

func monthKey(t time.Time) int32 {
	return int32(t.Year()*100 + int(t.Month()))
}
