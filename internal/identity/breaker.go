package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/example/ride-dispatch/internal/models"
)

// BreakerSettings tunes the resilience policy around a Directory.
type BreakerSettings struct {
	Name             string
	Timeout          time.Duration // per call
	FailureRatio     float64       // trip when failures/requests reaches this
	MinRequests      uint32        // requests seen before the ratio is considered
	OpenTimeout      time.Duration // open -> half-open
	HalfOpenRequests uint32        // calls allowed while half-open
	OnStateChange    func(name string, from, to gobreaker.State)
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "identity",
		Timeout:          time.Second,
		FailureRatio:     0.5,
		MinRequests:      5,
		OpenTimeout:      10 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Guarded wraps every Directory call in a timeout and a shared circuit
// breaker. Not-found answers and calls the caller cancelled count as
// successful calls.
type Guarded struct {
	next    Directory
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(next Directory, s BreakerSettings) *Guarded {
	st := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < s.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// the per-call timeout yields DeadlineExceeded, so Canceled is the caller's
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: s.OnStateChange,
	}
	return &Guarded{next: next, cb: gobreaker.NewCircuitBreaker(st), timeout: s.Timeout}
}

func (g *Guarded) FindCustomer(ctx context.Context, id string) (models.CustomerSnapshot, error) {
	res, err := g.call(ctx, func(ctx context.Context) (any, error) {
		return g.next.FindCustomer(ctx, id)
	})
	if err != nil {
		return models.CustomerSnapshot{}, err
	}
	return res.(models.CustomerSnapshot), nil
}

func (g *Guarded) FindDriver(ctx context.Context, id string) (models.DriverSnapshot, error) {
	res, err := g.call(ctx, func(ctx context.Context) (any, error) {
		return g.next.FindDriver(ctx, id)
	})
	if err != nil {
		return models.DriverSnapshot{}, err
	}
	return res.(models.DriverSnapshot), nil
}

func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func (g *Guarded) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(cctx)
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil, err
}
