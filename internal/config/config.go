// Package config loads storefront settings from an optional YAML file
// (CONFIG_FILE) and the environment. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment     string        `yaml:"environment"`
	LogLevel        string        `yaml:"log_level"`
	HTTPPort        string        `yaml:"http_port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Postgres Postgres `yaml:"postgres"`
	Mongo    Mongo    `yaml:"mongo"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`

	BaseURL   string              `yaml:"base_url"`
	Store     domain.StoreProfile `yaml:"store"`
	Checkout  Checkout            `yaml:"checkout"`
	Recovery  Recovery            `yaml:"recovery"`
	RateLimit RateLimit           `yaml:"rate_limit"`
}

type Postgres struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	DBName        string `yaml:"db_name"`
	SSLMode       string `yaml:"ssl_mode"`
	RunMigrations bool   `yaml:"run_migrations"`
}

func (p Postgres) Credentials() *repository.Credentials {
	return &repository.Credentials{
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: p.Password,
		DBName:   p.DBName,
		SSLMode:  p.SSLMode,
	}
}

// Mongo with an empty URI keeps customers in memory.
type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Redis with an empty Addr keeps session slots in memory.
type Redis struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// Kafka with no brokers drops order events after they leave the outbox.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
}

// RabbitMQ with an empty URL logs notifications instead of queueing them.
type RabbitMQ struct {
	URL string `yaml:"url"`
}

type Checkout struct {
	SessionTTL           time.Duration `yaml:"session_ttl"`
	TokenTTL             time.Duration `yaml:"token_ttl"`
	TokenCleanupInterval time.Duration `yaml:"token_cleanup_interval"`
	OutboxTick           time.Duration `yaml:"outbox_tick"`
}

type Recovery struct {
	IdleHours    int           `yaml:"idle_hours"`
	MaxReminders int           `yaml:"max_reminders"`
	MinInterval  time.Duration `yaml:"min_interval"`
	Concurrency  int           `yaml:"concurrency"`
}

// RateLimit values are hits per Window; zero disables a limiter.
type RateLimit struct {
	Window  time.Duration `yaml:"window"`
	Commit  int           `yaml:"commit"`
	Confirm int           `yaml:"confirm"`
	Return  int           `yaml:"return"`
}

func Default() *Config {
	return &Config{
		Environment:     "development",
		LogLevel:        "info",
		HTTPPort:        "8080",
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Postgres: Postgres{
			Host:          "localhost",
			Port:          5432,
			User:          "postgres",
			Password:      "postgres",
			DBName:        "storefront",
			SSLMode:       "disable",
			RunMigrations: true,
		},
		Mongo:   Mongo{Database: "storefront"},
		Redis:   Redis{Namespace: "storefront"},
		BaseURL: "http://localhost:8080",
		Store:   domain.StoreProfile{ID: "default", Name: "Storefront", OrderPrefix: "ORD"},
		Checkout: Checkout{
			SessionTTL:           30 * time.Minute,
			TokenTTL:             30 * time.Minute,
			TokenCleanupInterval: 10 * time.Minute,
			OutboxTick:           time.Second,
		},
		Recovery: Recovery{
			IdleHours:    2,
			MaxReminders: 3,
			MinInterval:  24 * time.Hour,
			Concurrency:  4,
		},
		RateLimit: RateLimit{
			Window:  time.Minute,
			Commit:  10,
			Confirm: 30,
			Return:  20,
		},
	}
}

// Load builds the configuration: defaults, then CONFIG_FILE if set, then
// environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	var errs []error
	durationVar := func(dst *time.Duration, key string) {
		if err := setDuration(dst, key); err != nil {
			errs = append(errs, err)
		}
	}
	intVar := func(dst *int, key string) {
		if err := setInt(dst, key); err != nil {
			errs = append(errs, err)
		}
	}

	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	durationVar(&c.RequestTimeout, "REQUEST_TIMEOUT")
	durationVar(&c.ShutdownTimeout, "SHUTDOWN_TIMEOUT")

	c.Postgres.Host = getEnv("DB_HOST", c.Postgres.Host)
	intVar(&c.Postgres.Port, "DB_PORT")
	c.Postgres.User = getEnv("DB_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("DB_PASSWORD", c.Postgres.Password)
	c.Postgres.DBName = getEnv("DB_NAME", c.Postgres.DBName)
	c.Postgres.SSLMode = getEnv("DB_SSLMODE", c.Postgres.SSLMode)
	if v := os.Getenv("DB_RUN_MIGRATIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid DB_RUN_MIGRATIONS: %w", err))
		}
		c.Postgres.RunMigrations = b
	}

	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DATABASE", c.Mongo.Database)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	intVar(&c.Redis.DB, "REDIS_DB")
	c.Redis.Namespace = getEnv("REDIS_NAMESPACE", c.Redis.Namespace)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	c.RabbitMQ.URL = getEnv("RABBITMQ_URL", c.RabbitMQ.URL)

	c.BaseURL = getEnv("STOREFRONT_BASE_URL", c.BaseURL)
	c.Store.ID = getEnv("STORE_ID", c.Store.ID)
	c.Store.Name = getEnv("STORE_NAME", c.Store.Name)
	c.Store.Email = getEnv("STORE_EMAIL", c.Store.Email)
	c.Store.Phone = getEnv("STORE_PHONE", c.Store.Phone)
	c.Store.OrderPrefix = getEnv("STORE_ORDER_PREFIX", c.Store.OrderPrefix)

	durationVar(&c.Checkout.SessionTTL, "SESSION_TTL")
	durationVar(&c.Checkout.TokenTTL, "TOKEN_TTL")
	durationVar(&c.Checkout.TokenCleanupInterval, "TOKEN_CLEANUP_INTERVAL")
	durationVar(&c.Checkout.OutboxTick, "OUTBOX_TICK")

	intVar(&c.Recovery.IdleHours, "RECOVERY_IDLE_HOURS")
	intVar(&c.Recovery.MaxReminders, "RECOVERY_MAX_REMINDERS")
	durationVar(&c.Recovery.MinInterval, "RECOVERY_MIN_INTERVAL")
	intVar(&c.Recovery.Concurrency, "RECOVERY_CONCURRENCY")

	durationVar(&c.RateLimit.Window, "RATE_LIMIT_WINDOW")
	intVar(&c.RateLimit.Commit, "RATE_LIMIT_COMMIT")
	intVar(&c.RateLimit.Confirm, "RATE_LIMIT_CONFIRM")
	intVar(&c.RateLimit.Return, "RATE_LIMIT_RETURN")

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if p, err := strconv.Atoi(c.HTTPPort); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid http port %q", c.HTTPPort))
	}
	if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid postgres port %d", c.Postgres.Port))
	}
	positive := map[string]time.Duration{
		"request_timeout":   c.RequestTimeout,
		"shutdown_timeout":  c.ShutdownTimeout,
		"session_ttl":       c.Checkout.SessionTTL,
		"token_ttl":         c.Checkout.TokenTTL,
		"outbox_tick":       c.Checkout.OutboxTick,
		"rate_limit.window": c.RateLimit.Window,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Recovery.IdleHours < 0 {
		errs = append(errs, fmt.Errorf("recovery idle hours must not be negative"))
	}
	if c.Recovery.MaxReminders <= 0 {
		errs = append(errs, fmt.Errorf("recovery max reminders must be positive"))
	}
	if c.Recovery.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("recovery concurrency must be positive"))
	}
	if c.Store.ID == "" {
		errs = append(errs, fmt.Errorf("store id is required"))
	}
	if c.BaseURL == "" {
		errs = append(errs, fmt.Errorf("storefront base url is required"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
