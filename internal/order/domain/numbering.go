package domain

import (
	"context"
	"fmt"
	"time"
)

// SequenceAllocator hands out the next order number for the calendar month
// that contains at.
type SequenceAllocator interface {
	NextOrderNumber(ctx context.Context, at time.Time) (int64, error)
}

type GeneratedNumber struct {
	Number       OrderNumber
	UniqueNumber UniqueOrderNumber
	// At is the instant used both for the month bucket and for formatting.
	At time.Time
}

type NumberGenerator struct {
	seq SequenceAllocator
	now func() time.Time
}

// NewNumberGenerator uses now as its clock; nil means time.Now in UTC.
func NewNumberGenerator(seq SequenceAllocator, now func() time.Time) *NumberGenerator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &NumberGenerator{seq: seq, now: now}
}

// Generate reads the clock once so that the month the allocator buckets the
// number into is the month printed in the unique number.
func (g *NumberGenerator) Generate(ctx context.Context) (GeneratedNumber, error) {
	at := g.now()

	next, err := g.seq.NextOrderNumber(ctx, at)
	if err != nil {
		return GeneratedNumber{}, fmt.Errorf("allocate order number: %w", err)
	}
	n, err := NewOrderNumber(next)
	if err != nil {
		return GeneratedNumber{}, err
	}
	return GeneratedNumber{
		Number:       n,
		UniqueNumber: FormatUniqueOrderNumber(at, n),
		At:           at,
	}, nil
}
