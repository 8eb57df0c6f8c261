package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
	// Release hands leased rows back as pending without counting an attempt.
	Release(ctx context.Context, relayID string, ids []int64) error
}

type Relay struct {
	log       *slog.Logger
	store     Store
	dispatch  *Dispatcher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
	published prometheus.Counter
	failed    prometheus.Counter
	now       func() time.Time
}

type RelayOption func(*Relay)

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLease(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.lease = d
		}
	}
}

// WithCounters makes the relay count published and failed events.
func WithCounters(published, failed prometheus.Counter) RelayOption {
	return func(r *Relay) {
		r.published = published
		r.failed = failed
	}
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...RelayOption) *Relay {
	r := &Relay{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("relay started", "relay_id", r.relayID, "batch_size", r.batchSize, "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.Drain(ctx); err != nil {
				r.log.Error("relay drain error", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// Drain leases one batch, publishes it in id order and records the outcome
// of every event. It returns how many events were published.
//
// Once an event fails, later events of the same aggregate in the batch are
// released unpublished so consumers never see them ahead of it. The lease on
// the rows still to be published is renewed when half of it has elapsed; if
// renewal fails the rest of the batch is released and Drain stops.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var sent, held []int64
	var leaseErr error
	blocked := map[string]bool{}
	renewed := r.now()
	for i, e := range events {
		if r.now().Sub(renewed) >= r.lease/2 {
			if err := r.store.ExtendLease(ctx, r.relayID, ids(events[i:]), r.lease); err != nil {
				leaseErr = fmt.Errorf("extend outbox lease: %w", err)
				held = append(held, ids(events[i:])...)
				break
			}
			renewed = r.now()
		}

		if blocked[e.AggregateID] {
			held = append(held, e.ID)
			continue
		}
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			blocked[e.AggregateID] = true
			if r.failed != nil {
				r.failed.Inc()
			}
			if markErr := r.store.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				r.log.Error("relay mark failed error", "event_id", e.ID, "err", markErr)
			}
			continue
		}
		sent = append(sent, e.ID)
	}

	if len(held) > 0 {
		if err := r.store.Release(ctx, r.relayID, held); err != nil {
			r.log.Error("relay release error", "relay_id", r.relayID, "events", len(held), "err", err)
		}
	}
	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return 0, err
		}
		if r.published != nil {
			r.published.Add(float64(len(sent)))
		}
	}
	return len(sent), leaseErr
}

func ids(events []Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
