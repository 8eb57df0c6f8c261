package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	orderdomain "github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/internal/payment/domain"
)

type Service struct {
	log      *slog.Logger
	orders   OrderLedger
	payments PaymentRepository
	now      func() time.Time
}

func NewService(log *slog.Logger, orders OrderLedger, payments PaymentRepository) *Service {
	return &Service{
		log:      log,
		orders:   orders,
		payments: payments,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Settle applies a provider payment to the order it names. Only individual
// orders are marked paid here; legal entities settle through their billing
// authority. The outcome is recorded whatever it is.
func (s *Service) Settle(ctx context.Context, ev domain.PaymentProcessed) (domain.Status, error) {
	u, err := orderdomain.ParseUniqueOrderNumber(ev.UniqueOrderNumber)
	if err != nil {
		return "", err
	}

	status, err := s.settle(ctx, u, ev.AmountCents)
	if err != nil {
		return "", err
	}

	p := domain.Payment{
		UniqueOrderNumber: u.String(),
		AmountCents:       ev.AmountCents,
		Status:            status,
		ReceivedAt:        s.now(),
	}
	if err := s.payments.Record(ctx, p); err != nil {
		return "", fmt.Errorf("record payment for %s: %w", u, err)
	}
	s.log.Info("payment settled", "unique_order_number", u.String(), "amount_cents", ev.AmountCents, "status", status)
	return status, nil
}

func (s *Service) settle(ctx context.Context, u orderdomain.UniqueOrderNumber, amount int64) (domain.Status, error) {
	o, err := s.orders.FindByUniqueOrderNumber(ctx, u)
	if errors.Is(err, orderdomain.ErrOrderNotFound) {
		return domain.StatusUnknownOrder, nil
	}
	if err != nil {
		return "", fmt.Errorf("find order %s: %w", u, err)
	}

	if !o.ContractorType().IsIndividual() {
		return domain.StatusSkipped, nil
	}
	if amount != o.Sum() {
		s.log.Warn("payment amount mismatch", "unique_order_number", u.String(), "amount_cents", amount, "sum", o.Sum())
		return domain.StatusAmountMismatch, nil
	}

	paid, err := s.orders.IsPaid(ctx, o.ID())
	if err != nil {
		return "", fmt.Errorf("read paid flag of %s: %w", u, err)
	}
	if paid {
		return domain.StatusAlreadyPaid, nil
	}
	if err := s.orders.MarkAsPaid(ctx, o.ID()); err != nil {
		return "", fmt.Errorf("mark %s paid: %w", u, err)
	}
	return domain.StatusApplied, nil
}
