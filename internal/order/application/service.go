package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

const MaxRecentOrdersLimit = 1000

type Service struct {
	log      *slog.Logger
	repo     OrderRepository
	numbers  NumberGenerator
	payments PaymentStatusChecker
}

func NewService(log *slog.Logger, repo OrderRepository, numbers NumberGenerator, payments PaymentStatusChecker) *Service {
	return &Service{log: log, repo: repo, numbers: numbers, payments: payments}
}

// CreateOrder validates the command before allocating a number, so rejected
// input never consumes a sequence value.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	ct, err := domain.ParseContractorType(cmd.ContractorType)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if cmd.Sum < 0 {
		return CreateOrderResult{}, domain.ErrNegativeSum
	}
	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		item, err := domain.NewOrderItem(it.ProductID, it.Price, it.Quantity)
		if err != nil {
			return CreateOrderResult{}, err
		}
		items = append(items, item)
	}

	gen, err := s.numbers.Generate(ctx)
	if err != nil {
		return CreateOrderResult{}, err
	}

	o, err := domain.NewOrder(domain.OrderParams{
		Number:         gen.Number,
		UniqueNumber:   gen.UniqueNumber,
		Sum:            cmd.Sum,
		ContractorType: ct,
		CreatedAt:      gen.At,
		Items:          items,
	})
	if err != nil {
		return CreateOrderResult{}, err
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return CreateOrderResult{}, fmt.Errorf("save order %s: %w", o.UniqueNumber(), err)
	}

	s.log.Info("order created",
		"unique_order_number", o.UniqueNumber().String(),
		"order_id", o.ID().Int64(),
		"contractor_type", ct.String(),
		"items", len(items),
	)
	return CreateOrderResult{
		UniqueOrderNumber: o.UniqueNumber().String(),
		ContractorType:    ct.Int(),
	}, nil
}

// CheckOrderCompletion reports whether the order is paid. A paid order is
// terminal: the payment authority is only consulted while the order is
// pending, and the order is saved at most once, on the PENDING to PAID edge.
func (s *Service) CheckOrderCompletion(ctx context.Context, q CheckOrderCompletionQuery) (CheckOrderCompletionResult, error) {
	u, err := domain.ParseUniqueOrderNumber(q.UniqueOrderNumber)
	if err != nil {
		return CheckOrderCompletionResult{}, err
	}
	o, err := s.repo.FindByUniqueOrderNumber(ctx, u)
	if err != nil {
		return CheckOrderCompletionResult{}, err
	}

	if o.IsPaid() {
		return completion(true), nil
	}

	paid, err := s.payments.CheckPaymentStatus(ctx, o)
	if err != nil {
		return CheckOrderCompletionResult{}, fmt.Errorf("check payment status of %s: %w", u, err)
	}
	if !paid {
		return completion(false), nil
	}

	o.MarkAsPaid()
	if err := s.repo.Save(ctx, o); err != nil {
		return CheckOrderCompletionResult{}, fmt.Errorf("save paid order %s: %w", u, err)
	}
	s.log.Info("order paid", "unique_order_number", u.String(), "contractor_type", o.ContractorType().String())
	return completion(true), nil
}

func completion(paid bool) CheckOrderCompletionResult {
	if paid {
		return CheckOrderCompletionResult{IsPaid: true, Message: MessagePaid}
	}
	return CheckOrderCompletionResult{IsPaid: false, Message: MessagePending}
}

func (s *Service) RecentOrders(ctx context.Context, q RecentOrdersQuery) ([]OrderListItem, error) {
	if q.Limit < 1 || q.Limit > MaxRecentOrdersLimit {
		return nil, domain.ErrInvalidRecentOrdersLimit
	}
	orders, err := s.repo.FindRecentOrders(ctx, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("find recent orders: %w", err)
	}

	out := make([]OrderListItem, 0, len(orders))
	for _, o := range orders {
		items := o.Items()
		dtos := make([]OrderItemDTO, 0, len(items))
		for _, it := range items {
			dtos = append(dtos, OrderItemDTO{
				ProductID: it.ProductID(),
				Price:     it.Price(),
				Quantity:  it.Quantity(),
			})
		}
		out = append(out, OrderListItem{
			ID:             o.UniqueNumber().String(),
			Sum:            o.Sum(),
			ContractorType: o.ContractorType().Int(),
			Items:          dtos,
		})
	}
	return out, nil
}
