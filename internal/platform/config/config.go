package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "trustscore/pkg/platform/strings"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the process configuration assembled from the environment.
type Config struct {
	Environment     string
	LogLevel        string
	StoreBackend    string
	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration

	Server       Server
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Tracing      TracingConfig
	ServiceToken ServiceTokenConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig configures the Postgres store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the event publisher. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers         []string
	Topic           string
	ClientID        string
	DeliveryTimeout time.Duration
}

// TracingConfig configures span export. Empty Endpoint keeps spans in
// process: they are sampled and recorded but never exported.
type TracingConfig struct {
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

// ServiceTokenConfig configures collaborator tokens on the write path.
type ServiceTokenConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

const devSigningKey = "dev-service-token-key-change-me"

// IsProduction reports whether the process runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// LoadDotEnv reads variables from the given files (default .env) without
// overriding what the environment already sets. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		StoreTimeout:    p.duration("STORE_TIMEOUT", 2*time.Second),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		Server: Server{
			Addr:         getEnv("TRUSTSCORE_ADDR", ":8080"),
			ReadTimeout:  p.duration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: p.duration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  p.duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    p.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    p.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         pstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			Topic:           getEnv("KAFKA_TOPIC", "verification.events"),
			ClientID:        getEnv("KAFKA_CLIENT_ID", "trustscore"),
			DeliveryTimeout: p.duration("KAFKA_DELIVERY_TIMEOUT", 10*time.Second),
		},
		Tracing: TracingConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "trustscore"),
			SampleRatio: p.ratio("OTEL_TRACES_SAMPLE_RATIO", 1),
		},
		ServiceToken: ServiceTokenConfig{
			SigningKey: os.Getenv("SERVICE_TOKEN_KEY"),
			Issuer:     getEnv("SERVICE_TOKEN_ISSUER", "trustscore"),
			Audience:   getEnv("SERVICE_TOKEN_AUDIENCE", "trustscore-verification"),
		},
	}

	if cfg.ServiceToken.SigningKey == "" {
		if cfg.IsProduction() {
			errs = append(errs, errors.New("SERVICE_TOKEN_KEY is required in production"))
		}
		cfg.ServiceToken.SigningKey = devSigningKey
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORE_BACKEND=redis"))
		}
	case BackendPostgres:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend))
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_LEVEL %q", cfg.LogLevel))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs *[]error
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return fallback
	}
	return d
}

func (p parser) integer(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return fallback
	}
	return n
}

func (p parser) ratio(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: ratio must be within [0,1], got %q", key, raw))
		return fallback
	}
	return f
}
