// Package ordertest provides in-memory stand-ins for the order repository and
// the payment authority, shared by the application, http and payment tests.
package ordertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

type monthKey struct {
	year  int
	month time.Month
}

// Repository keeps orders and per-month counters in memory. A single mutex
// plays the role of the sequence row lock.
type Repository struct {
	mu        sync.Mutex
	orders    map[domain.OrderID]*domain.Order
	byUnique  map[domain.UniqueOrderNumber]domain.OrderID
	sequences map[monthKey]int64
	nextID    int64

	Saves   int
	SaveErr error
	SeqErr  error
}

func NewRepository() *Repository {
	return &Repository{
		orders:    make(map[domain.OrderID]*domain.Order),
		byUnique:  make(map[domain.UniqueOrderNumber]domain.OrderID),
		sequences: make(map[monthKey]int64),
	}
}

func (r *Repository) NextOrderNumber(_ context.Context, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SeqErr != nil {
		return 0, r.SeqErr
	}

	key := monthKey{year: at.Year(), month: at.Month()}
	if cur, ok := r.sequences[key]; ok {
		r.sequences[key] = cur + 1
		return cur + 1, nil
	}
	var top int64
	for _, v := range r.sequences {
		if v > top {
			top = v
		}
	}
	r.sequences[key] = top + 1
	return top + 1, nil
}

func (r *Repository) Save(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Saves++
	if r.SaveErr != nil {
		return r.SaveErr
	}

	if o.IsPersisted() {
		stored, ok := r.orders[o.ID()]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if o.IsPaid() {
			stored.MarkAsPaid()
		}
		return nil
	}

	r.nextID++
	if err := o.AssignID(domain.OrderID(r.nextID)); err != nil {
		return err
	}
	r.orders[o.ID()] = clone(o)
	r.byUnique[o.UniqueNumber()] = o.ID()
	return nil
}

func (r *Repository) FindByUniqueOrderNumber(_ context.Context, u domain.UniqueOrderNumber) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUnique[u]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return clone(r.orders[id]), nil
}

func (r *Repository) FindRecentOrders(_ context.Context, limit int) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt().Equal(all[j].CreatedAt()) {
			return all[i].CreatedAt().After(all[j].CreatedAt())
		}
		return all[i].ID() > all[j].ID()
	})
	if limit < len(all) {
		all = all[:limit]
	}
	out := make([]*domain.Order, len(all))
	for i, o := range all {
		out[i] = clone(o)
	}
	return out, nil
}

func (r *Repository) IsPaid(_ context.Context, id domain.OrderID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	return o.IsPaid(), nil
}

func (r *Repository) MarkAsPaid(_ context.Context, id domain.OrderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.MarkAsPaid()
	return nil
}

func clone(o *domain.Order) *domain.Order {
	c, err := domain.NewOrder(domain.OrderParams{
		ID:             o.ID(),
		Number:         o.Number(),
		UniqueNumber:   o.UniqueNumber(),
		Sum:            o.Sum(),
		ContractorType: o.ContractorType(),
		CreatedAt:      o.CreatedAt(),
		Paid:           o.IsPaid(),
		Items:          o.Items(),
	})
	if err != nil {
		panic(err)
	}
	return c
}

// PaymentChecker answers with Paid (or Err) and counts calls.
type PaymentChecker struct {
	mu    sync.Mutex
	Paid  bool
	Err   error
	calls int
}

func (p *PaymentChecker) CheckPaymentStatus(context.Context, *domain.Order) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.Paid, p.Err
}

func (p *PaymentChecker) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
