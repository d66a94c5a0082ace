package dispatch

import (
	"context"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
)

// Notifier tells the matched driver about a freshly opened order.
type Notifier interface {
	OrderOpened(ctx context.Context, o *models.Order) error
}

// Multi fans an order out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) OrderOpened(ctx context.Context, o *models.Order) error {
	var errs []error
	for _, n := range m {
		if err := n.OrderOpened(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
