package application

type CreateOrderItem struct {
	ProductID int64
	Price     int64
	Quantity  int64
}

type CreateOrderCommand struct {
	Sum            int64
	ContractorType int
	Items          []CreateOrderItem
}

type CreateOrderResult struct {
	UniqueOrderNumber string
	ContractorType    int
}

type CheckOrderCompletionQuery struct {
	UniqueOrderNumber string
}

type CompletionMessage string

const (
	MessagePaid    CompletionMessage = "Order has been paid successfully. Thank you for your purchase!"
	MessagePending CompletionMessage = "Order payment is pending. Please complete the payment to proceed."
)

type CheckOrderCompletionResult struct {
	IsPaid  bool              `json:"isPaid"`
	Message CompletionMessage `json:"message"`
}

type RecentOrdersQuery struct {
	Limit int
}

type OrderItemDTO struct {
	ProductID int64 `json:"productId"`
	Price     int64 `json:"price"`
	Quantity  int64 `json:"quantity"`
}

type OrderListItem struct {
	ID             string         `json:"id"`
	Sum            int64          `json:"sum"`
	ContractorType int            `json:"contractorType"`
	Items          []OrderItemDTO `json:"items"`
}
