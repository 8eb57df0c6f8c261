package domain

const EventPaymentProcessed = "PaymentProcessed"

// PaymentProcessed is published by the payment provider once money for an
// order has been captured.
type PaymentProcessed struct {
	UniqueOrderNumber string `json:"uniqueOrderNumber"`
	AmountCents       int64  `json:"amountCents"`
}
