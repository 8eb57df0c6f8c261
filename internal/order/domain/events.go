package domain

import "time"

const (
	EventOrderCreated = "OrderCreated"
	EventOrderPaid    = "OrderPaid"
)

// OrderEvent is the payload published to the order events topic.
type OrderEvent struct {
	UniqueOrderNumber string    `json:"uniqueOrderNumber"`
	OrderNumber       int64     `json:"orderNumber"`
	Sum               int64     `json:"sum"`
	ContractorType    int       `json:"contractorType"`
	IsPaid            bool      `json:"isPaid"`
	CreatedAt         time.Time `json:"createdAt"`
}

func NewOrderEvent(o *Order) OrderEvent {
	return OrderEvent{
		UniqueOrderNumber: o.UniqueNumber().String(),
		OrderNumber:       o.Number().Int64(),
		Sum:               o.Sum(),
		ContractorType:    o.ContractorType().Int(),
		IsPaid:            o.IsPaid(),
		CreatedAt:         o.CreatedAt(),
	}
}
