package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const orderSequenceKey = "seq:order"

// FormatOrderID renders a sequence number as a fixed-width order id.
func FormatOrderID(n int64) string {
	return fmt.Sprintf("T%010d", n)
}

type MemorySequence struct {
	n atomic.Int64
}

func (s *MemorySequence) NextOrderID(_ context.Context) (string, error) {
	return FormatOrderID(s.n.Add(1)), nil
}

// RedisSequence uses INCR so ids stay unique across processes.
type RedisSequence struct {
	client *redis.Client
	key    string
}

func NewRedisSequence(client *redis.Client) *RedisSequence {
	return &RedisSequence{client: client, key: orderSequenceKey}
}

func (s *RedisSequence) NextOrderID(ctx context.Context) (string, error) {
	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return "", fmt.Errorf("incr %s: %w", s.key, err)
	}
	return FormatOrderID(n), nil
}

// PostgresSequence draws ids from the order_seq sequence, so they survive
// restarts together with the orders they name.
type PostgresSequence struct {
	db *sql.DB
}

func (s *PostgresSequence) NextOrderID(ctx context.Context) (string, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('order_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("nextval order_seq: %w", err)
	}
	return FormatOrderID(n), nil
}
