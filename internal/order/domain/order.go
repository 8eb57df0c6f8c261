package domain

import (
	"time"
)

type OrderItem struct {
	productID int64
	price     int64
	quantity  int64
}

// NewOrderItem validates a line item. Price is in minor currency units.
func NewOrderItem(productID, price, quantity int64) (OrderItem, error) {
	if productID <= 0 {
		return OrderItem{}, ErrNonPositiveProductID
	}
	if price < 0 {
		return OrderItem{}, ErrNegativePrice
	}
	if quantity <= 0 {
		return OrderItem{}, ErrNonPositiveQuantity
	}
	return OrderItem{productID: productID, price: price, quantity: quantity}, nil
}

func (i OrderItem) ProductID() int64 { return i.productID }
func (i OrderItem) Price() int64 { return i.price }
func (i OrderItem) Quantity() int64 { return i.quantity }

// OrderParams carries everything needed to build an Order, either a fresh one
// (ID zero, Paid false) or one hydrated from storage.
type OrderParams struct {
	ID             OrderID
	Number         OrderNumber
	UniqueNumber   UniqueOrderNumber
	Sum            int64
	ContractorType ContractorType
	CreatedAt      time.Time
	Paid           bool
	Items          []OrderItem
}

// Order is the aggregate root. Only the paid flag changes after construction.
type Order struct {
	id             OrderID
	number         OrderNumber
	uniqueNumber   UniqueOrderNumber
	sum            int64
	contractorType ContractorType
	createdAt      time.Time
	paid           bool
	items          []OrderItem
}

func NewOrder(p OrderParams) (*Order, error) {
	if _, err := NewOrderID(p.ID.Int64()); err != nil {
		return nil, err
	}
	if _, err := NewOrderNumber(p.Number.Int64()); err != nil {
		return nil, err
	}
	if _, err := ParseUniqueOrderNumber(p.UniqueNumber.String()); err != nil {
		return nil, err
	}
	if _, err := ParseContractorType(p.ContractorType.Int()); err != nil {
		return nil, err
	}
	if p.Sum < 0 {
		return nil, ErrNegativeSum
	}

	items := make([]OrderItem, len(p.Items))
	copy(items, p.Items)

	return &Order{
		id:             p.ID,
		number:         p.Number,
		uniqueNumber:   p.UniqueNumber,
		sum:            p.Sum,
		contractorType: p.ContractorType,
		createdAt:      p.CreatedAt,
		paid:           p.Paid,
		items:          items,
	}, nil
}

func (o *Order) ID() OrderID { return o.id }
func (o *Order) Number() OrderNumber { return o.number }
func (o *Order) UniqueNumber() UniqueOrderNumber { return o.uniqueNumber }
func (o *Order) Sum() int64 { return o.sum }
func (o *Order) ContractorType() ContractorType { return o.contractorType }
func (o *Order) CreatedAt() time.Time { return o.createdAt }
func (o *Order) IsPaid() bool { return o.paid }
func (o *Order) IsPersisted() bool { return !o.id.IsZero() }

// Items returns a copy; callers cannot reorder or mutate the order's lines.
func (o *Order) Items() []OrderItem {
	out := make([]OrderItem, len(o.items))
	copy(out, o.items)
	return out
}

// MarkAsPaid is one-way: there is no transition back to unpaid.
func (o *Order) MarkAsPaid() {
	o.paid = true
}

// AssignID adopts the identity handed out by storage on first insert.
func (o *Order) AssignID(id OrderID) error {
	if !o.id.IsZero() {
		return ErrOrderIDAssigned
	}
	if _, err := NewOrderID(id.Int64()); err != nil {
		return err
	}
	o.id = id
	return nil
}
