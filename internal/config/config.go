package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the dispatch API process.
// Values are loaded from environment variables with defaults that let the
// binary run locally against in-memory backends.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	MatchRadiusMeters float64
	MatchBackoff      time.Duration
	MatchMaxAttempts  int

	IdentityBaseURL string
	Breaker         BreakerConfig
	DriverCacheTTL  time.Duration

	NotifyWebhook string

	LogLevel      string
	RunMigrations bool
}

type BreakerConfig struct {
	Timeout          time.Duration
	FailureRatio     float64
	MinRequests      int
	OpenTimeout      time.Duration
	HalfOpenRequests int
}

// ConsumerConfig is the location topic consumer's configuration.
type ConsumerConfig struct {
	MetricsAddr string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	PGDSN string

	IdentityBaseURL string
	Breaker         BreakerConfig
	DriverCacheTTL  time.Duration

	LogLevel string
}

func defaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Timeout:          time.Second,
		FailureRatio:     0.5,
		MinRequests:      5,
		OpenTimeout:      10 * time.Second,
		HalfOpenRequests: 1,
	}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RedisGeoKey:       "Drivers",
		KafkaTopic:        "driver-locations",
		MatchRadiusMeters: 500,
		MatchBackoff:      2 * time.Second,
		IdentityBaseURL:   "http://localhost:8081",
		Breaker:           defaultBreakerConfig(),
		DriverCacheTTL:    30 * time.Second,
		LogLevel:          "info",
	}
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MetricsAddr:     ":2112",
		KafkaBrokers:    []string{"localhost:9092"},
		KafkaTopic:      "driver-locations",
		KafkaGroup:      "ride-dispatch-consumer",
		RedisAddr:       "localhost:6379",
		RedisGeoKey:     "Drivers",
		IdentityBaseURL: "http://localhost:8081",
		Breaker:         defaultBreakerConfig(),
		DriverCacheTTL:  30 * time.Second,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.MatchRadiusMeters, "MATCH_RADIUS_METERS", &errs)
	setDurationFromEnv(&cfg.MatchBackoff, "MATCH_BACKOFF", &errs)
	setIntFromEnv(&cfg.MatchMaxAttempts, "MATCH_MAX_ATTEMPTS", &errs)

	setStringFromEnv(&cfg.IdentityBaseURL, "IDENTITY_BASE_URL")
	loadBreaker(&cfg.Breaker, &errs)
	setDurationFromEnv(&cfg.DriverCacheTTL, "DRIVER_CACHE_TTL", &errs)

	cfg.NotifyWebhook = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK"))

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.MatchRadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_RADIUS_METERS must be > 0"))
	}
	if cfg.MatchBackoff <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_BACKOFF must be > 0"))
	}
	if cfg.MatchMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("MATCH_MAX_ATTEMPTS must be >= 0"))
	}
	errs = append(errs, cfg.Breaker.validate()...)

	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := defaultConsumerConfig()
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKER")
	}
	if brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setStringFromEnv(&cfg.IdentityBaseURL, "IDENTITY_BASE_URL")
	loadBreaker(&cfg.Breaker, &errs)
	setDurationFromEnv(&cfg.DriverCacheTTL, "DRIVER_CACHE_TTL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must not be empty"))
	}
	errs = append(errs, cfg.Breaker.validate()...)

	return cfg, errors.Join(errs...)
}

func loadBreaker(b *BreakerConfig, errs *[]error) {
	setDurationFromEnv(&b.Timeout, "IDENTITY_TIMEOUT", errs)
	setFloatFromEnv(&b.FailureRatio, "BREAKER_FAILURE_RATIO", errs)
	setIntFromEnv(&b.MinRequests, "BREAKER_MIN_REQUESTS", errs)
	setDurationFromEnv(&b.OpenTimeout, "BREAKER_OPEN_TIMEOUT", errs)
	setIntFromEnv(&b.HalfOpenRequests, "BREAKER_HALF_OPEN_REQUESTS", errs)
}

func (b BreakerConfig) validate() []error {
	var errs []error
	if b.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("IDENTITY_TIMEOUT must be > 0"))
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		errs = append(errs, fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0,1]"))
	}
	if b.MinRequests < 1 {
		errs = append(errs, fmt.Errorf("BREAKER_MIN_REQUESTS must be >= 1"))
	}
	if b.HalfOpenRequests < 1 {
		errs = append(errs, fmt.Errorf("BREAKER_HALF_OPEN_REQUESTS must be >= 1"))
	}
	return errs
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
