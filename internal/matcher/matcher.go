package matcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

const (
	DefaultRadiusMeters  = 500
	DefaultBackoff       = 2 * time.Second
	DefaultNotifyTimeout = 5 * time.Second

	maxPendingNotifies = 64
)

type IntentionQueue interface {
	Put(in models.Intention)
	Take(ctx context.Context) (models.Intention, error)
	Len() int
}

type OrderCreator interface {
	Create(ctx context.Context, in models.Intention, driverID string) (*models.Order, error)
}

// Worker is the single consumer of the intention queue. Each intention is
// either turned into an order with the first driver the index returns, or
// put back with a fixed backoff.
type Worker struct {
	Queue    IntentionQueue
	Geo      geo.Index
	Orders   OrderCreator
	Dispatch dispatch.Notifier // optional
	Clock    clockwork.Clock
	Logger   *slog.Logger

	RadiusMeters float64
	Backoff      time.Duration
	MaxAttempts  int // 0 retries forever

	// NotifyTimeout bounds one driver notification. Notifications run beside
	// the loop, never inside it.
	NotifyTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	notifying sync.WaitGroup
	notifySem chan struct{}
}

func (w *Worker) defaults() {
	if w.RadiusMeters <= 0 {
		w.RadiusMeters = DefaultRadiusMeters
	}
	if w.Backoff <= 0 {
		w.Backoff = DefaultBackoff
	}
	if w.NotifyTimeout <= 0 {
		w.NotifyTimeout = DefaultNotifyTimeout
	}
	if w.notifySem == nil {
		w.notifySem = make(chan struct{}, maxPendingNotifies)
	}
	if w.Clock == nil {
		w.Clock = clockwork.NewRealClock()
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
}

// Start runs the loop in its own goroutine until Stop is called or ctx ends.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	w.defaults()
	ctx, w.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	w.done = done
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
}

// Stop signals the loop and waits for the intention in flight to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run blocks until ctx is cancelled. Any other failure is logged and the
// loop keeps going. Pending driver notifications finish before Run returns.
func (w *Worker) Run(ctx context.Context) {
	w.defaults()
	defer w.notifying.Wait()
	w.Logger.Info("start handling intention loop", "radius_m", w.RadiusMeters, "backoff", w.Backoff.String())
	for {
		in, err := w.Queue.Take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.Logger.Info("intention loop stopped")
				return
			}
			w.Logger.Error("waiting for intention failed", "error", err)
			continue
		}
		observability.QueueDepth.Set(float64(w.Queue.Len()))
		// an intention already taken is finished even during shutdown
		w.handle(context.WithoutCancel(ctx), in)
	}
}

func (w *Worker) handle(ctx context.Context, in models.Intention) (outcome string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("panic while matching intention", "mid", in.MID, "panic", r)
			outcome = observability.OutcomeFailed
		}
		observability.MatchAttempts.WithLabelValues(outcome).Inc()
		observability.MatchLatency.Observe(time.Since(start).Seconds())
	}()

	w.Logger.Debug("got intention", "mid", in.MID, "customer_id", in.CustomerID, "attempts", in.Attempts)
	ids, err := w.Geo.Radius(ctx, in.Start, w.RadiusMeters)
	if err != nil {
		w.Logger.Warn("radius query failed", "mid", in.MID, "error", err)
		ids = nil
	}
	if len(ids) == 0 {
		return w.requeue(in)
	}

	// first returned id wins; the index makes no distance promise
	driverID := ids[0]
	w.Logger.Info("nearby drivers found", "mid", in.MID, "customer_id", in.CustomerID, "drivers", strings.Join(ids, ","), "driver_id", driverID)
	o, err := w.Orders.Create(ctx, in, driverID)
	if err != nil {
		w.Logger.Error("order creation failed", "mid", in.MID, "customer_id", in.CustomerID, "driver_id", driverID, "error", err)
		return observability.OutcomeFailed
	}
	w.notify(ctx, o)
	return observability.OutcomeMatched
}

// notify hands the order to the Notifier on its own goroutine. When too many
// notifications are already pending the new one is dropped.
func (w *Worker) notify(ctx context.Context, o *models.Order) {
	if w.Dispatch == nil {
		return
	}
	select {
	case w.notifySem <- struct{}{}:
	default:
		w.Logger.Warn("driver notification dropped, too many pending", "order_id", o.ID, "driver_id", o.Driver.ID)
		return
	}
	w.notifying.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.Logger.Error("panic while notifying driver", "order_id", o.ID, "panic", r)
			}
			<-w.notifySem
			w.notifying.Done()
		}()
		nctx, cancel := context.WithTimeout(ctx, w.NotifyTimeout)
		defer cancel()
		if err := w.Dispatch.OrderOpened(nctx, o); err != nil {
			w.Logger.Warn("driver notification failed", "order_id", o.ID, "driver_id", o.Driver.ID, "error", err)
		}
	}()
}

func (w *Worker) requeue(in models.Intention) string {
	next := in.Retry(w.Clock.Now().Add(w.Backoff))
	if w.MaxAttempts > 0 && next.Attempts >= w.MaxAttempts {
		w.Logger.Warn("no driver found, giving up", "mid", in.MID, "customer_id", in.CustomerID, "attempts", next.Attempts)
		return observability.OutcomeDropped
	}
	w.Queue.Put(next)
	observability.QueueDepth.Set(float64(w.Queue.Len()))
	w.Logger.Info("no driver found, re-queued", "mid", in.MID, "customer_id", in.CustomerID, "attempts", next.Attempts, "ready_at", next.ReadyAt)
	return observability.OutcomeRequeued
}
