package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

const (
	insertOrderSQL = `
		INSERT INTO orders (order_number, unique_order_number, sum, contractor_type, created_at, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	insertItemSQL     = `INSERT INTO order_items (order_id, product_id, price, quantity) VALUES ($1, $2, $3, $4)`
	lockPaidSQL       = `SELECT is_paid FROM orders WHERE id = $1 FOR UPDATE`
	updatePaidSQL     = `UPDATE orders SET is_paid = $1 WHERE id = $2`
	selectByUniqueSQL = `
		SELECT id, order_number, unique_order_number, sum, contractor_type, created_at, is_paid
		FROM orders
		WHERE unique_order_number = $1`
	selectItemsSQL = `SELECT product_id, price, quantity FROM order_items WHERE order_id = $1 ORDER BY id`
	// Limit the ids first so that an order with many items is never cut in half.
	selectRecentSQL = `
		WITH recent AS (
			SELECT id FROM orders ORDER BY created_at DESC, id DESC LIMIT $1
		)
		SELECT o.id, o.order_number, o.unique_order_number, o.sum, o.contractor_type, o.created_at, o.is_paid,
		       oi.product_id, oi.price, oi.quantity
		FROM recent r
		JOIN orders o ON o.id = r.id
		LEFT JOIN order_items oi ON oi.order_id = o.id
		ORDER BY o.created_at DESC, o.id DESC, oi.id ASC`
	selectIsPaidSQL  = `SELECT is_paid FROM orders WHERE id = $1`
	lockOrderByIDSQL = `
		SELECT id, order_number, unique_order_number, sum, contractor_type, created_at, is_paid
		FROM orders
		WHERE id = $1
		FOR UPDATE`
	markPaidSQL     = `UPDATE orders SET is_paid = TRUE WHERE id = $1 AND is_paid = FALSE`
	insertOutboxSQL = `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ('order', $1, $2, $3, $4, $5, 'pending')`
)

type Repository struct {
	log *slog.Logger
	db  DB
}

func NewRepository(log *slog.Logger, db DB) *Repository {
	return &Repository{log: log, db: db}
}

// Save inserts a new order with its items, or, for an order that already has
// an id, writes its paid flag. Every other column is write-once. Both paths
// enqueue the matching outbox event in the same transaction.
func (r *Repository) Save(ctx context.Context, o *domain.Order) error {
	if o.IsPersisted() {
		return r.update(ctx, o)
	}
	return r.insert(ctx, o)
}

func (r *Repository) insert(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id int64
	err = tx.QueryRow(ctx, insertOrderSQL,
		o.Number().Int64(), o.UniqueNumber().String(), o.Sum(), o.ContractorType().Int(), o.CreatedAt(), o.IsPaid(),
	).Scan(&id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.UniqueNumber())
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items() {
		if _, err := tx.Exec(ctx, insertItemSQL, id, it.ProductID(), it.Price(), it.Quantity()); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := enqueue(ctx, tx, domain.EventOrderCreated, o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}
	return o.AssignID(domain.OrderID(id))
}

func (r *Repository) update(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var stored bool
	err = tx.QueryRow(ctx, lockPaidSQL, o.ID().Int64()).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("lock order: %w", err)
	}
	if stored == o.IsPaid() {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, updatePaidSQL, o.IsPaid(), o.ID().Int64()); err != nil {
		return fmt.Errorf("update order paid flag: %w", err)
	}
	if o.IsPaid() {
		if err := enqueue(ctx, tx, domain.EventOrderPaid, o); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}

func enqueue(ctx context.Context, tx pgx.Tx, eventType string, o *domain.Order) error {
	payload, err := json.Marshal(domain.NewOrderEvent(o))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	headers := map[string]string{
		"event_id": uuid.NewString(),
		"source":   "order-service",
	}
	if _, err := tx.Exec(ctx, insertOutboxSQL,
		o.UniqueNumber().String(), eventType, payload, headers, tracing.Traceparent(ctx),
	); err != nil {
		return fmt.Errorf("insert outbox %s: %w", eventType, err)
	}
	return nil
}

type orderRow struct {
	id             int64
	number         int64
	unique         string
	sum            int64
	contractorType int
	createdAt      time.Time
	paid           bool
}

func (row orderRow) toDomain(items []domain.OrderItem) (*domain.Order, error) {
	ct, err := domain.ParseContractorType(row.contractorType)
	if err != nil {
		return nil, fmt.Errorf("%w: order %d: %v", ErrDataIntegrity, row.id, err)
	}
	o, err := domain.NewOrder(domain.OrderParams{
		ID:             domain.OrderID(row.id),
		Number:         domain.OrderNumber(row.number),
		UniqueNumber:   domain.UniqueOrderNumber(row.unique),
		Sum:            row.sum,
		ContractorType: ct,
		CreatedAt:      row.createdAt,
		Paid:           row.paid,
		Items:          items,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: order %d: %v", ErrDataIntegrity, row.id, err)
	}
	return o, nil
}

func newItem(orderID, productID, price, quantity int64) (domain.OrderItem, error) {
	it, err := domain.NewOrderItem(productID, price, quantity)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("%w: item of order %d: %v", ErrDataIntegrity, orderID, err)
	}
	return it, nil
}

func scanFailure(what string, err error) error {
	if isScanError(err) {
		return fmt.Errorf("%w: scan %s: %v", ErrDataIntegrity, what, err)
	}
	return fmt.Errorf("scan %s: %w", what, err)
}

func (r *Repository) FindByUniqueOrderNumber(ctx context.Context, u domain.UniqueOrderNumber) (*domain.Order, error) {
	var row orderRow
	err := r.db.QueryRow(ctx, selectByUniqueSQL, u.String()).
		Scan(&row.id, &row.number, &row.unique, &row.sum, &row.contractorType, &row.createdAt, &row.paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, scanFailure("order", err)
	}

	rows, err := r.db.Query(ctx, selectItemsSQL, row.id)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var productID, price, quantity int64
		if err := rows.Scan(&productID, &price, &quantity); err != nil {
			return nil, scanFailure("order item", err)
		}
		it, err := newItem(row.id, productID, price, quantity)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return row.toDomain(items)
}

// FindRecentOrders returns up to limit orders, newest first, each with all of
// its items in insertion order.
func (r *Repository) FindRecentOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, selectRecentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent orders: %w", err)
	}
	defer rows.Close()

	var (
		heads []orderRow
		items = make(map[int64][]domain.OrderItem)
	)
	for rows.Next() {
		var (
			row                        orderRow
			productID, price, quantity *int64
		)
		if err := rows.Scan(
			&row.id, &row.number, &row.unique, &row.sum, &row.contractorType, &row.createdAt, &row.paid,
			&productID, &price, &quantity,
		); err != nil {
			return nil, scanFailure("recent order", err)
		}
		if len(heads) == 0 || heads[len(heads)-1].id != row.id {
			heads = append(heads, row)
		}
		if productID == nil {
			continue
		}
		if price == nil || quantity == nil {
			return nil, fmt.Errorf("%w: item of order %d has null columns", ErrDataIntegrity, row.id)
		}
		it, err := newItem(row.id, *productID, *price, *quantity)
		if err != nil {
			return nil, err
		}
		items[row.id] = append(items[row.id], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent orders: %w", err)
	}

	out := make([]*domain.Order, 0, len(heads))
	for _, h := range heads {
		o, err := h.toDomain(items[h.id])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *Repository) IsPaid(ctx context.Context, id domain.OrderID) (bool, error) {
	var paid bool
	err := r.db.QueryRow(ctx, selectIsPaidSQL, id.Int64()).Scan(&paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrOrderNotFound
	}
	if err != nil {
		return false, fmt.Errorf("select is_paid: %w", err)
	}
	return paid, nil
}

// MarkAsPaid sets the paid flag of the order with the given id and enqueues
// OrderPaid in the same transaction. An order that is already paid is left
// untouched and no event is written.
func (r *Repository) MarkAsPaid(ctx context.Context, id domain.OrderID) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin mark paid tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var row orderRow
	err = tx.QueryRow(ctx, lockOrderByIDSQL, id.Int64()).
		Scan(&row.id, &row.number, &row.unique, &row.sum, &row.contractorType, &row.createdAt, &row.paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return scanFailure("order", err)
	}
	if row.paid {
		return tx.Commit(ctx)
	}

	tag, err := tx.Exec(ctx, markPaidSQL, id.Int64())
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}
	row.paid = true
	o, err := row.toDomain(nil)
	if err != nil {
		return err
	}
	if err := enqueue(ctx, tx, domain.EventOrderPaid, o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mark paid tx: %w", err)
	}
	return nil
}
