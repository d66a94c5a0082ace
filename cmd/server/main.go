package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/bootstrap"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/identity"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/order"
	"github.com/example/ride-dispatch/internal/queue"
	"github.com/example/ride-dispatch/internal/storage"
	"github.com/example/ride-dispatch/internal/tracker"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("ride-dispatch", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	clock := clockwork.NewRealClock()

	var checks []func(context.Context) error

	var (
		rc    *redis.Client
		index geo.Index = geo.NewIndex()
	)
	if cfg.RedisAddr != "" {
		c, err := bootstrap.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		rc = c
		defer rc.Close()
		rg := geo.NewRedisGeo(rc, cfg.RedisGeoKey)
		index = rg
		checks = append(checks, rg.Ping)
	} else if len(cfg.KafkaBrokers) > 0 {
		logger.Warn("kafka configured without redis: positions from the consumer will not reach this process's index")
	}

	mem := storage.NewMemoryStore()
	var (
		pg        *storage.PostgresStore
		orders    storage.OrderStore    = mem
		positions storage.PositionStore = mem
	)
	if cfg.PGDSN != "" {
		ps, err := bootstrap.NewPostgres(ctx, cfg.PGDSN, cfg.RunMigrations, logger)
		if err != nil {
			return err
		}
		defer ps.Close()
		pg = ps
		orders, positions = ps, ps
		checks = append(checks, ps.Ping)
	}

	ids := bootstrap.OrderIDs(pg, rc)

	directory := bootstrap.NewIdentity(cfg.IdentityBaseURL, cfg.Breaker, logger)
	trk := tracker.New(identity.NewDriverCache(directory, cfg.DriverCacheTTL, clock), positions, index, clock, logger)

	wsreg := dispatch.NewWSRegistry()
	var notifier dispatch.Notifier = wsreg
	if cfg.NotifyWebhook != "" {
		notifier = dispatch.Multi{wsreg, dispatch.NewWebhookNotifier(cfg.NotifyWebhook)}
	}

	intentions := queue.NewDelayQueue[models.Intention](clock)
	worker := &matcher.Worker{
		Queue:        intentions,
		Geo:          index,
		Orders:       order.NewCreator(directory, orders, ids, clock, logger),
		Dispatch:     notifier,
		Clock:        clock,
		Logger:       logger.With("component", "matcher"),
		RadiusMeters: cfg.MatchRadiusMeters,
		Backoff:      cfg.MatchBackoff,
		MaxAttempts:  cfg.MatchMaxAttempts,
	}
	worker.Start(ctx)
	defer worker.Stop()

	opts := httpapi.Options{
		Queue:     intentions,
		Tracker:   trk,
		Orders:    orders,
		Positions: positions,
		WSReg:     wsreg,
		Clock:     clock,
		Ready: func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		opts.Publisher = kp
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(opts, logger.With("component", "http")),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
