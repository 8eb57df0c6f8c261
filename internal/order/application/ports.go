package application

import (
	"context"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

type OrderRepository interface {
	Save(ctx context.Context, o *domain.Order) error
	FindByUniqueOrderNumber(ctx context.Context, u domain.UniqueOrderNumber) (*domain.Order, error)
	FindRecentOrders(ctx context.Context, limit int) ([]*domain.Order, error)
}

type NumberGenerator interface {
	Generate(ctx context.Context) (domain.GeneratedNumber, error)
}

// PaymentStatusChecker asks the payment authority whether an order is paid.
type PaymentStatusChecker interface {
	CheckPaymentStatus(ctx context.Context, o *domain.Order) (bool, error)
}
