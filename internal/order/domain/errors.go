package domain

import "errors"

// InvariantError is returned when a value object or the Order aggregate is
// constructed from values that break its rules. Msg is safe to show to API
// clients.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return e.Msg }
func (e *InvariantError) Kind() string  { return "invalid" }

func invariant(msg string) *InvariantError {
	return &InvariantError{Msg: msg}
}

var (
	ErrNegativeOrderID          = invariant("Order ID must be a non-negative integer")
	ErrOrderIDAssigned          = invariant("Order ID is already assigned")
	ErrNonPositiveOrderNumber   = invariant("Order number must be a positive integer")
	ErrEmptyUniqueOrderNumber   = invariant("Unique order number cannot be empty")
	ErrMalformedUniqueNumber    = invariant("Unique order number must be in format YYYY-MM-NNNNN (e.g., 2020-09-12345)")
	ErrUnknownContractorType    = invariant("Contractor type must be 1 (individual) or 2 (legal entity)")
	ErrNonPositiveProductID     = invariant("Product ID must be a positive integer")
	ErrNegativePrice            = invariant("Price cannot be negative")
	ErrNonPositiveQuantity      = invariant("Quantity must be a positive integer")
	ErrNegativeSum              = invariant("Order sum cannot be negative")
	ErrInvalidRecentOrdersLimit = invariant("Limit must be between 1 and 1000")
)

type notFoundError struct{ msg string }

func (e notFoundError) Error() string { return e.msg }
func (e notFoundError) Kind() string  { return "not_found" }

var ErrOrderNotFound error = notFoundError{msg: "Order not found"}

// IsInvariant reports whether err (or anything it wraps) is an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
