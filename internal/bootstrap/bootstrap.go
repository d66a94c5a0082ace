// Package bootstrap builds the backends shared by the server and consumer
// binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/identity"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

func NewRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return rc, nil
}

func NewPostgres(ctx context.Context, dsn string, migrate bool, logger *slog.Logger) (*storage.PostgresStore, error) {
	ps, err := storage.NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if migrate {
		if err := ps.Migrate(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		logger.Info("migrations applied")
	}
	return ps, nil
}

// NewIdentity returns the guarded identity client and keeps the breaker
// state gauge current.
func NewIdentity(baseURL string, b config.BreakerConfig, logger *slog.Logger) *identity.Guarded {
	s := BreakerSettings(b)
	s.OnStateChange = func(name string, from, to gobreaker.State) {
		observability.BreakerState.Set(float64(breakerGauge(to)))
		logger.Warn("identity breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}
	return identity.NewGuarded(identity.NewHTTPClient(baseURL), s)
}

func BreakerSettings(b config.BreakerConfig) identity.BreakerSettings {
	s := identity.DefaultBreakerSettings()
	s.Timeout = b.Timeout
	s.FailureRatio = b.FailureRatio
	s.MinRequests = uint32(b.MinRequests)
	s.OpenTimeout = b.OpenTimeout
	s.HalfOpenRequests = uint32(b.HalfOpenRequests)
	return s
}

func breakerGauge(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

// OrderIDs picks the id source that lives as long as the orders it names:
// the postgres sequence when orders are durable, redis INCR when shared, and
// an in-process counter otherwise.
func OrderIDs(pg *storage.PostgresStore, rc *redis.Client) storage.IDGenerator {
	switch {
	case pg != nil:
		return pg.Sequence()
	case rc != nil:
		return storage.NewRedisSequence(rc)
	}
	return &storage.MemorySequence{}
}
