package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const inProgress = "in_progress"

// Store keeps idempotency markers in redis. Every key expires after ttl.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Key identifies one Kafka message.
func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Seen marks key as processed and reports whether it already was.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Forget removes key, letting the next attempt run again.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Response is a stored HTTP response replayed for repeated requests.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

var ErrInProgress = errors.New("request with this Idempotency-Key is already in progress")

// Begin claims key for a new request. It returns the stored response when
// the key was already completed, ErrInProgress while another request holds
// it, and (nil, nil) when the caller now owns the key.
func (s *Store) Begin(ctx context.Context, key string) (*Response, error) {
	ok, err := s.rdb.SetNX(ctx, key, inProgress, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SetNX and Get; try once more.
		return s.claimAgain(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if raw == inProgress {
		return nil, ErrInProgress
	}

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return &resp, nil
}

func (s *Store) claimAgain(ctx context.Context, key string) (*Response, error) {
	ok, err := s.rdb.SetNX(ctx, key, inProgress, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if !ok {
		return nil, ErrInProgress
	}
	return nil, nil
}

// Complete stores resp under key for the rest of the ttl.
func (s *Store) Complete(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store response: %w", err)
	}
	return nil
}
