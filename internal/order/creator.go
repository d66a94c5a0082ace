package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/example/ride-dispatch/internal/identity"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

var ErrPersist = errors.New("order not persisted")

// Creator turns a matched intention into an OPENED order.
type Creator struct {
	directory identity.Directory
	store     storage.OrderStore
	ids       storage.IDGenerator
	clock     clockwork.Clock
	logger    *slog.Logger
}

func NewCreator(directory identity.Directory, store storage.OrderStore, ids storage.IDGenerator, clock clockwork.Clock, logger *slog.Logger) *Creator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Creator{directory: directory, store: store, ids: ids, clock: clock, logger: logger}
}

// Create fetches both identity snapshots first and only then opens the
// transaction, so no transaction waits on the identity service. Lookup
// errors are returned as-is and the intention is not re-queued here.
func (c *Creator) Create(ctx context.Context, in models.Intention, driverID string) (*models.Order, error) {
	customer, err := c.directory.FindCustomer(ctx, in.CustomerID)
	if err != nil {
		observability.IdentityErrors.WithLabelValues(errorKind(err)).Inc()
		return nil, fmt.Errorf("customer %s: %w", in.CustomerID, err)
	}
	driver, err := c.directory.FindDriver(ctx, driverID)
	if err != nil {
		observability.IdentityErrors.WithLabelValues(errorKind(err)).Inc()
		return nil, fmt.Errorf("driver %s: %w", driverID, err)
	}

	id, err := c.ids.NextOrderID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: order id: %v", ErrPersist, err)
	}
	o := &models.Order{
		ID:          id,
		Customer:    customer,
		Driver:      driver,
		Status:      models.StatusOpened,
		OpenedAt:    c.clock.Now(),
		Start:       in.Start,
		Dest:        in.Dest,
		IntentionID: in.MID,
	}
	err = c.store.InTx(ctx, func(tx storage.OrderTx) error {
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	observability.OrdersCreated.Inc()
	c.logger.Info("order opened", "order_id", o.ID, "mid", in.MID, "customer_id", customer.ID, "driver_id", driver.ID)
	return o, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return "not_found"
	case errors.Is(err, identity.ErrUnavailable):
		return "unavailable"
	}
	return "other"
}
