package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

var orderColumns = []string{"id", "order_number", "unique_order_number", "sum", "contractor_type", "created_at", "is_paid"}

func newOrder(t *testing.T, id int64, paid bool) *domain.Order {
	t.Helper()
	a, err := domain.NewOrderItem(5, 1000, 1)
	require.NoError(t, err)
	b, err := domain.NewOrderItem(6, 250, 2)
	require.NoError(t, err)
	o, err := domain.NewOrder(domain.OrderParams{
		ID:             domain.OrderID(id),
		Number:         4,
		UniqueNumber:   "2026-03-4",
		Sum:            1500,
		ContractorType: domain.ContractorIndividual,
		CreatedAt:      march,
		Paid:           paid,
		Items:          []domain.OrderItem{a, b},
	})
	require.NoError(t, err)
	return o
}

func TestSaveInsertsOrderItemsAndOutboxEvent(t *testing.T) {
	mock := newMock(t)
	o := newOrder(t, 0, false)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO orders")).
		WithArgs(int64(4), "2026-03-4", int64(1500), 1, march, false).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(q("INSERT INTO order_items")).
		WithArgs(int64(11), int64(5), int64(1000), int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("INSERT INTO order_items")).
		WithArgs(int64(11), int64(6), int64(250), int64(2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("INSERT INTO outbox")).
		WithArgs("2026-03-4", domain.EventOrderCreated, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewRepository(discard(), mock).Save(context.Background(), o))
	assert.Equal(t, domain.OrderID(11), o.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInsertMapsUniqueViolation(t *testing.T) {
	mock := newMock(t)
	o := newOrder(t, 0, false)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO orders")).
		WithArgs(int64(4), "2026-03-4", int64(1500), 1, march, false).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := NewRepository(discard(), mock).Save(context.Background(), o)
	require.ErrorIs(t, err, ErrDuplicateOrderNumber)
	assert.False(t, o.IsPersisted())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInsertRollsBackWhenItemFails(t *testing.T) {
	mock := newMock(t)
	o := newOrder(t, 0, false)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO orders")).
		WithArgs(int64(4), "2026-03-4", int64(1500), 1, march, false).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(q("INSERT INTO order_items")).
		WithArgs(int64(11), int64(5), int64(1000), int64(1)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := NewRepository(discard(), mock).Save(context.Background(), o)
	require.ErrorContains(t, err, "insert order item")
	assert.False(t, o.IsPersisted())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpdateMarksPaidAndEnqueuesEvent(t *testing.T) {
	mock := newMock(t)
	o := newOrder(t, 11, true)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT is_paid FROM orders WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"is_paid"}).AddRow(false))
	mock.ExpectExec(q("UPDATE orders SET is_paid")).
		WithArgs(true, int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q("INSERT INTO outbox")).
		WithArgs("2026-03-4", domain.EventOrderPaid, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewRepository(discard(), mock).Save(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpdateWithoutChangeWritesNothing(t *testing.T) {
	mock := newMock(t)
	o := newOrder(t, 11, true)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT is_paid FROM orders WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"is_paid"}).AddRow(true))
	mock.ExpectCommit()

	require.NoError(t, NewRepository(discard(), mock).Save(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpdateMissingOrder(t *testing.T) {
	mock := newMock(t)
	o := newOrder(t, 11, true)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT is_paid FROM orders WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(11)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := NewRepository(discard(), mock).Save(context.Background(), o)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUniqueOrderNumber(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(q("WHERE unique_order_number = $1")).
		WithArgs("2026-03-4").
		WillReturnRows(pgxmock.NewRows(orderColumns).
			AddRow(int64(11), int64(4), "2026-03-4", int64(1500), 2, march, true))
	mock.ExpectQuery(q("FROM order_items WHERE order_id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "price", "quantity"}).
			AddRow(int64(5), int64(1000), int64(1)).
			AddRow(int64(6), int64(250), int64(2)))

	o, err := NewRepository(discard(), mock).FindByUniqueOrderNumber(context.Background(), "2026-03-4")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderID(11), o.ID())
	assert.Equal(t, domain.ContractorLegalEntity, o.ContractorType())
	assert.True(t, o.IsPaid())
	require.Len(t, o.Items(), 2)
	assert.Equal(t, int64(6), o.Items()[1].ProductID())
	assert.Equal(t, int64(2), o.Items()[1].Quantity())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUniqueOrderNumberNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(q("WHERE unique_order_number = $1")).
		WithArgs("2026-03-99").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewRepository(discard(), mock).FindByUniqueOrderNumber(context.Background(), "2026-03-99")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestFindByUniqueOrderNumberRejectsCorruptRow(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(q("WHERE unique_order_number = $1")).
		WithArgs("2026-03-4").
		WillReturnRows(pgxmock.NewRows(orderColumns).
			AddRow(int64(11), int64(4), "2026-03-4", int64(1500), 7, march, false))
	mock.ExpectQuery(q("FROM order_items WHERE order_id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "price", "quantity"}))

	_, err := NewRepository(discard(), mock).FindByUniqueOrderNumber(context.Background(), "2026-03-4")
	require.ErrorIs(t, err, ErrDataIntegrity)
}

func ptr(v int64) *int64 { return &v }

func TestFindRecentOrdersGroupsItems(t *testing.T) {
	later := march.AddDate(0, 0, 1)
	cols := append(append([]string{}, orderColumns...), "product_id", "price", "quantity")

	mock := newMock(t)
	mock.ExpectQuery(q("WITH recent AS")).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(12), int64(5), "2026-03-5", int64(300), 2, later, false, ptr(7), ptr(100), ptr(3)).
			AddRow(int64(12), int64(5), "2026-03-5", int64(300), 2, later, false, ptr(8), ptr(0), ptr(1)).
			AddRow(int64(11), int64(4), "2026-03-4", int64(0), 1, march, false, (*int64)(nil), (*int64)(nil), (*int64)(nil)))

	orders, err := NewRepository(discard(), mock).FindRecentOrders(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, domain.OrderID(12), orders[0].ID())
	require.Len(t, orders[0].Items(), 2)
	assert.Equal(t, int64(7), orders[0].Items()[0].ProductID())
	assert.Equal(t, int64(8), orders[0].Items()[1].ProductID())

	assert.Equal(t, domain.OrderID(11), orders[1].ID())
	assert.Empty(t, orders[1].Items())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRecentOrdersZeroLimitSkipsQuery(t *testing.T) {
	mock := newMock(t)
	orders, err := NewRepository(discard(), mock).FindRecentOrders(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsPaid(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(q("SELECT is_paid FROM orders WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"is_paid"}).AddRow(false))
	mock.ExpectQuery(q("SELECT is_paid FROM orders WHERE id = $1")).
		WithArgs(int64(12)).
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(discard(), mock)
	paid, err := repo.IsPaid(context.Background(), 11)
	require.NoError(t, err)
	assert.False(t, paid)

	_, err = repo.IsPaid(context.Background(), 12)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAsPaidEnqueuesOrderPaid(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows(orderColumns).
			AddRow(int64(11), int64(4), "2026-03-4", int64(1500), 1, march, false))
	mock.ExpectExec(q("UPDATE orders SET is_paid = TRUE WHERE id = $1 AND is_paid = FALSE")).
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q("INSERT INTO outbox")).
		WithArgs("2026-03-4", domain.EventOrderPaid, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewRepository(discard(), mock).MarkAsPaid(context.Background(), 11))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAsPaidAlreadyPaidWritesNothing(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows(orderColumns).
			AddRow(int64(11), int64(4), "2026-03-4", int64(1500), 1, march, true))
	mock.ExpectCommit()

	require.NoError(t, NewRepository(discard(), mock).MarkAsPaid(context.Background(), 11))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAsPaidMissingOrder(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(int64(12)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := NewRepository(discard(), mock).MarkAsPaid(context.Background(), 12)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAsPaidRollsBackWhenOutboxFails(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows(orderColumns).
			AddRow(int64(11), int64(4), "2026-03-4", int64(1500), 1, march, false))
	mock.ExpectExec(q("UPDATE orders SET is_paid = TRUE")).
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q("INSERT INTO outbox")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := NewRepository(discard(), mock).MarkAsPaid(context.Background(), 11)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
