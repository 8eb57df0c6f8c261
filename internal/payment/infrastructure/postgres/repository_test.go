package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/payment/domain"
)

func TestRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs("2026-03-4", int64(1500), "applied", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs("2026-03-5", int64(10), "unknown_order", at).
		WillReturnError(errors.New("connection reset"))

	repo := NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), mock)
	require.NoError(t, repo.Record(context.Background(), domain.Payment{
		UniqueOrderNumber: "2026-03-4", AmountCents: 1500, Status: domain.StatusApplied, ReceivedAt: at,
	}))
	require.ErrorContains(t, repo.Record(context.Background(), domain.Payment{
		UniqueOrderNumber: "2026-03-5", AmountCents: 10, Status: domain.StatusUnknownOrder, ReceivedAt: at,
	}), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS payments")).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_payments_unique_order_number")).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	require.NoError(t, Migrate(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
