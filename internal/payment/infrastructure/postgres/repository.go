package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmehra2102/orderflow/internal/payment/domain"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	createPaymentsSQL = `
		CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			unique_order_number TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			status TEXT NOT NULL,
			received_at TIMESTAMPTZ NOT NULL
		)`
	createPaymentsIndexSQL = `CREATE INDEX IF NOT EXISTS idx_payments_unique_order_number ON payments (unique_order_number)`
	insertPaymentSQL       = `INSERT INTO payments (unique_order_number, amount_cents, status, received_at) VALUES ($1, $2, $3, $4)`
)

type Repository struct {
	log *slog.Logger
	db  DB
}

func NewRepository(log *slog.Logger, db DB) *Repository {
	return &Repository{log: log, db: db}
}

func Migrate(ctx context.Context, db DB) error {
	for _, q := range []string{createPaymentsSQL, createPaymentsIndexSQL} {
		if _, err := db.Exec(ctx, q); err != nil {
			return fmt.Errorf("init payments schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, p domain.Payment) error {
	if _, err := r.db.Exec(ctx, insertPaymentSQL, p.UniqueOrderNumber, p.AmountCents, string(p.Status), p.ReceivedAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}
