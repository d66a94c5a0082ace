package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/bootstrap"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/identity"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
	"github.com/example/ride-dispatch/internal/tracker"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total driver location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	reportsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_positions_applied_total",
		Help: "Total position reports applied",
	})
	reportsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_positions_failed_total",
		Help: "Total position reports that could not be applied",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, reportsApplied, reportsFailed)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger("ride-dispatch-consumer", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc, err := bootstrap.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	defer rc.Close()

	var positions storage.PositionStore = storage.NewMemoryStore()
	warnLocalPositions(cfg, logger)
	if cfg.PGDSN != "" {
		ps, err := bootstrap.NewPostgres(ctx, cfg.PGDSN, false, logger)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		positions = ps
	}

	clock := clockwork.NewRealClock()
	directory := identity.NewDriverCache(bootstrap.NewIdentity(cfg.IdentityBaseURL, cfg.Breaker, logger), cfg.DriverCacheTTL, clock)
	trk := tracker.New(directory, positions, geo.NewRedisGeo(rc, cfg.RedisGeoKey), clock, logger)

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer r.Close()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)
	consume(ctx, r, trk, logger)
}

// warnLocalPositions reports when positions would only be kept in this
// process, out of reach of the server's position endpoint.
func warnLocalPositions(cfg config.ConsumerConfig, logger *slog.Logger) bool {
	if cfg.PGDSN != "" {
		return false
	}
	logger.Warn("PG_DSN not set: positions are kept in this process only and the server cannot read them")
	return true
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// PositionReporter is the part of the tracker the consumer needs.
type PositionReporter interface {
	ReportPosition(ctx context.Context, driverID string, loc models.Coord) error
}

func consume(ctx context.Context, r messageReader, rep PositionReporter, logger *slog.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Error("kafka read error", "error", err, "backoff", backoff.String())
			if !sleep(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		report, err := ingest.DecodeLocation(m)
		if err != nil || report.DriverID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "offset", m.Offset, "error", err)
			continue
		}

		if err := reportWithRetry(ctx, rep, report, 3, 200*time.Millisecond); err != nil {
			reportsFailed.Inc()
			logger.Error("position update failed", "driver_id", report.DriverID, "error", err)
			continue
		}
		reportsApplied.Inc()
	}
}

// reportWithRetry applies one report, retrying transient failures with
// exponential backoff. An unknown driver is never retried.
func reportWithRetry(ctx context.Context, rep PositionReporter, r models.LocationReport, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = rep.ReportPosition(ctx, r.DriverID, r.Loc)
		if err == nil || errors.Is(err, identity.ErrNotFound) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
