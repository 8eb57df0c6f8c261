package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

type stubRecentRepo struct {
	OrderRepository
	orders []*domain.Order
	err    error
	limit  int
}

func (s *stubRecentRepo) FindRecentOrders(_ context.Context, limit int) ([]*domain.Order, error) {
	s.limit = limit
	return s.orders, s.err
}

func TestRecentOrdersProjection(t *testing.T) {
	f := newFixture(t)
	first := createOrder(t, f, 1)
	f.now = f.now.Add(time.Minute)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Sum:            700,
		ContractorType: 2,
		Items: []CreateOrderItem{
			{ProductID: 9, Price: 100, Quantity: 3},
			{ProductID: 4, Price: 200, Quantity: 2},
		},
	})
	require.NoError(t, err)

	list, err := f.svc.RecentOrders(context.Background(), RecentOrdersQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, OrderListItem{
		ID:             "2025-11-2",
		Sum:            700,
		ContractorType: 2,
		Items: []OrderItemDTO{
			{ProductID: 9, Price: 100, Quantity: 3},
			{ProductID: 4, Price: 200, Quantity: 2},
		},
	}, list[0])
	assert.Equal(t, first, list[1].ID)

	list, err = f.svc.RecentOrders(context.Background(), RecentOrdersQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2025-11-2", list[0].ID)
}

func TestRecentOrdersEmptyItemsAreNotNil(t *testing.T) {
	o, err := domain.NewOrder(domain.OrderParams{
		ID: 1, Number: 1, UniqueNumber: "2025-11-1", ContractorType: domain.ContractorIndividual,
	})
	require.NoError(t, err)
	repo := &stubRecentRepo{orders: []*domain.Order{o}}
	svc := NewService(newFixture(t).svc.log, repo, nil, nil)

	list, err := svc.RecentOrders(context.Background(), RecentOrdersQuery{Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].Items)
	assert.Empty(t, list[0].Items)
	assert.Equal(t, 5, repo.limit)
}

func TestRecentOrdersLimitBounds(t *testing.T) {
	f := newFixture(t)
	for _, limit := range []int{0, -1, MaxRecentOrdersLimit + 1} {
		_, err := f.svc.RecentOrders(context.Background(), RecentOrdersQuery{Limit: limit})
		assert.ErrorIs(t, err, domain.ErrInvalidRecentOrdersLimit)
	}
	_, err := f.svc.RecentOrders(context.Background(), RecentOrdersQuery{Limit: MaxRecentOrdersLimit})
	assert.NoError(t, err)
}

func TestRecentOrdersRepositoryError(t *testing.T) {
	boom := errors.New("relation \"orders\" does not exist")
	svc := NewService(newFixture(t).svc.log, &stubRecentRepo{err: boom}, nil, nil)

	_, err := svc.RecentOrders(context.Background(), RecentOrdersQuery{Limit: 3})
	assert.ErrorIs(t, err, boom)
}
