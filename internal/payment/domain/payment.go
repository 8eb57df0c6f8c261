package domain

import "time"

// Status is the outcome of settling one provider payment against the order
// ledger.
type Status string

const (
	StatusApplied        Status = "applied"
	StatusAlreadyPaid    Status = "already_paid"
	StatusSkipped        Status = "skipped_legal_entity"
	StatusAmountMismatch Status = "amount_mismatch"
	StatusUnknownOrder   Status = "unknown_order"
)

type Payment struct {
	UniqueOrderNumber string
	AmountCents       int64
	Status            Status
	ReceivedAt        time.Time
}
