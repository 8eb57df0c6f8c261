package domain

import (
	"fmt"
	"regexp"
	"time"
)

// OrderID is the storage identity of an order. Zero means the order has not
// been persisted yet.
type OrderID int64

func NewOrderID(v int64) (OrderID, error) {
	if v < 0 {
		return 0, ErrNegativeOrderID
	}
	return OrderID(v), nil
}

func (id OrderID) Int64() int64 { return int64(id) }

func (id OrderID) IsZero() bool { return id == 0 }

// OrderNumber is the per-month sequential number handed out by the sequence
// allocator.
type OrderNumber int64

func NewOrderNumber(v int64) (OrderNumber, error) {
	if v <= 0 {
		return 0, ErrNonPositiveOrderNumber
	}
	return OrderNumber(v), nil
}

func (n OrderNumber) Int64() int64 { return int64(n) }

var uniqueOrderNumberRe = regexp.MustCompile(`^\d{4}-\d{2}-\d+$`)

// UniqueOrderNumber is the external identifier of an order, YYYY-MM-<seq>.
type UniqueOrderNumber string

func ParseUniqueOrderNumber(s string) (UniqueOrderNumber, error) {
	if s == "" {
		return "", ErrEmptyUniqueOrderNumber
	}
	if !uniqueOrderNumberRe.MatchString(s) {
		return "", ErrMalformedUniqueNumber
	}
	return UniqueOrderNumber(s), nil
}

// FormatUniqueOrderNumber builds the unique number for n using the UTC year
// and month of at.
func FormatUniqueOrderNumber(at time.Time, n OrderNumber) UniqueOrderNumber {
	at = at.UTC()
	return UniqueOrderNumber(fmt.Sprintf("%04d-%02d-%d", at.Year(), int(at.Month()), n.Int64()))
}

func (u UniqueOrderNumber) String() string { return string(u) }

type ContractorType int

const (
	ContractorIndividual  ContractorType = 1
	ContractorLegalEntity ContractorType = 2
)

func ParseContractorType(v int) (ContractorType, error) {
	switch ct := ContractorType(v); ct {
	case ContractorIndividual, ContractorLegalEntity:
		return ct, nil
	}
	return 0, ErrUnknownContractorType
}

func (c ContractorType) Int() int { return int(c) }

func (c ContractorType) IsIndividual() bool { return c == ContractorIndividual }

func (c ContractorType) IsLegalEntity() bool { return c == ContractorLegalEntity }

func (c ContractorType) String() string {
	switch c {
	case ContractorIndividual:
		return "individual"
	case ContractorLegalEntity:
		return "legal_entity"
	}
	return fmt.Sprintf("contractor_type(%d)", int(c))
}
