package storage

import (
	"context"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
)

var ErrNotFound = errors.New("not found")

// OrderTx is the write side of one unit of work.
type OrderTx interface {
	SaveOrder(ctx context.Context, o *models.Order) error
}

// OrderStore persists orders. InTx commits every write made through the
// OrderTx when fn returns nil and discards all of them otherwise.
type OrderStore interface {
	InTx(ctx context.Context, fn func(tx OrderTx) error) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

// PositionStore keeps the last known position per driver.
type PositionStore interface {
	SavePosition(ctx context.Context, p *models.DriverPosition) error
	GetPosition(ctx context.Context, driverID string) (*models.DriverPosition, error)
}

// IDGenerator hands out unique order ids.
type IDGenerator interface {
	NextOrderID(ctx context.Context) (string, error)
}
