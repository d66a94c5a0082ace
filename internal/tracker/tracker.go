package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/identity"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

// Tracker ingests driver location reports. It holds no locks of its own, so
// reports for different drivers proceed independently.
type Tracker struct {
	drivers   identity.Directory
	positions storage.PositionStore
	index     geo.Index
	clock     clockwork.Clock
	logger    *slog.Logger
}

func New(drivers identity.Directory, positions storage.PositionStore, index geo.Index, clock clockwork.Clock, logger *slog.Logger) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{drivers: drivers, positions: positions, index: index, clock: clock, logger: logger}
}

// ReportPosition records the driver's latest position and makes it visible
// to radius queries. The store write and the index upsert are not atomic
// together.
func (t *Tracker) ReportPosition(ctx context.Context, driverID string, loc models.Coord) error {
	driver, err := t.drivers.FindDriver(ctx, driverID)
	if err != nil {
		observability.PositionReports.WithLabelValues("lookup_failed").Inc()
		return fmt.Errorf("driver %s: %w", driverID, err)
	}
	dp := &models.DriverPosition{
		DriverID:  driverID,
		Loc:       loc,
		Driver:    driver,
		UpdatedAt: t.clock.Now(),
	}
	if err := t.positions.SavePosition(ctx, dp); err != nil {
		observability.PositionReports.WithLabelValues("store_failed").Inc()
		return fmt.Errorf("save position %s: %w", driverID, err)
	}
	if err := t.index.Upsert(ctx, driverID, loc); err != nil {
		observability.PositionReports.WithLabelValues("index_failed").Inc()
		return fmt.Errorf("index position %s: %w", driverID, err)
	}
	observability.PositionReports.WithLabelValues("ok").Inc()
	t.logger.Debug("position updated", "driver_id", driverID, "lat", loc.Lat, "lon", loc.Lon)
	return nil
}
