package application

import (
	"context"
	"fmt"
	"math/rand/v2"

	orderdomain "github.com/dmehra2102/orderflow/internal/order/domain"
)

// StatusPolicy answers whether an order has been paid.
//
// Individual contractors are trusted through the local database only: the
// answer is the order's own paid flag, which the payment-service consumer
// updates when the provider reports a capture. Legal entities are confirmed
// by an external billing authority, stood in for here by a coin toss.
type StatusPolicy struct {
	authority func() bool
}

func NewStatusPolicy() *StatusPolicy {
	return &StatusPolicy{authority: func() bool { return rand.IntN(2) == 1 }}
}

func (p *StatusPolicy) CheckPaymentStatus(_ context.Context, o *orderdomain.Order) (bool, error) {
	switch ct := o.ContractorType(); ct {
	case orderdomain.ContractorIndividual:
		return o.IsPaid(), nil
	case orderdomain.ContractorLegalEntity:
		return p.authority(), nil
	default:
		return false, fmt.Errorf("no payment policy for %s", ct)
	}
}
