package application

import (
	"context"

	orderdomain "github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/internal/payment/domain"
)

// OrderLedger is the slice of the order repository that settlement needs.
type OrderLedger interface {
	FindByUniqueOrderNumber(ctx context.Context, u orderdomain.UniqueOrderNumber) (*orderdomain.Order, error)
	IsPaid(ctx context.Context, id orderdomain.OrderID) (bool, error)
	MarkAsPaid(ctx context.Context, id orderdomain.OrderID) error
}

// PaymentRepository keeps an audit trail of every provider payment received.
type PaymentRepository interface {
	Record(ctx context.Context, p domain.Payment) error
}
