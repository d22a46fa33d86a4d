// Package config загружает конфигурацию сервиса планировщика.
//
// Порядок: значения по умолчанию → YAML файл (опционально) → переменные окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Foreman/internal/liveness"
	"github.com/shaiso/Foreman/internal/platform"
	"github.com/shaiso/Foreman/internal/repo"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config — конфигурация foreman-scheduler.
type Config struct {
	// Port — порт HTTP сервера.
	Port int `yaml:"port"`

	// StoreBackend — memory | postgres.
	StoreBackend string `yaml:"store_backend"`

	// DatabaseURL — DSN PostgreSQL (для StoreBackend=postgres).
	DatabaseURL string `yaml:"database_url"`

	// RabbitMQURL — URL брокера. Пустой — без событий и MQ-intake.
	RabbitMQURL string `yaml:"rabbitmq_url"`

	// WorkerTimeout — keep-alive интервал.
	WorkerTimeout time.Duration `yaml:"worker_timeout"`

	// LivenessSchedule — cron spec проверки keep-alive.
	LivenessSchedule string `yaml:"liveness_schedule"`

	// MatchInterval — период фонового dispatch.
	MatchInterval time.Duration `yaml:"match_interval"`

	// MatchBatchSize — размер страницы очереди при dispatch.
	MatchBatchSize int `yaml:"match_batch_size"`

	// MaxRequeues — лимит requeue после потери worker'а, 0 — без лимита.
	MaxRequeues int `yaml:"max_requeues"`

	// PlatformProperties — виды properties: имя → exact | minimum | ignore.
	PlatformProperties map[string]string `yaml:"platform_properties"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Port:             8080,
		StoreBackend:     BackendMemory,
		DatabaseURL:      repo.DefaultDSN,
		WorkerTimeout:    5 * time.Second,
		LivenessSchedule: liveness.DefaultSchedule,
		MatchInterval:    time.Second,
		MatchBatchSize:   100,
	}
}

// Load читает YAML файл (если path не пустой) и применяет переменные окружения.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv переопределяет поля из окружения.
func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error

	if v := getenv("FOREMAN_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FOREMAN_PORT: %w", err))
		}
		c.Port = n
	}
	if v := getenv("STORE_BACKEND"); v != "" {
		c.StoreBackend = v
	}
	if v := getenv("DB_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQURL = v
	}
	if v := getenv("WORKER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WORKER_TIMEOUT: %w", err))
		}
		c.WorkerTimeout = d
	}
	if v := getenv("LIVENESS_SCHEDULE"); v != "" {
		c.LivenessSchedule = v
	}
	if v := getenv("MATCH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MATCH_INTERVAL: %w", err))
		}
		c.MatchInterval = d
	}
	if v := getenv("MATCH_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MATCH_BATCH_SIZE: %w", err))
		}
		c.MatchBatchSize = n
	}
	if v := getenv("MAX_REQUEUES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_REQUEUES: %w", err))
		}
		c.MaxRequeues = n
	}
	if v := getenv("PLATFORM_PROPERTIES"); v != "" {
		kinds, err := platform.ParseKinds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLATFORM_PROPERTIES: %w", err))
		}
		c.PlatformProperties = make(map[string]string, len(kinds))
		for name, kind := range kinds {
			c.PlatformProperties[name] = string(kind)
		}
	}

	return errors.Join(errs...)
}

// Validate проверяет конфигурацию.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("database url is required for postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	if c.WorkerTimeout < time.Second {
		errs = append(errs, fmt.Errorf("worker timeout must be at least 1s, got %s", c.WorkerTimeout))
	}
	if c.MatchInterval <= 0 {
		errs = append(errs, fmt.Errorf("match interval must be positive"))
	}
	if c.MatchBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("match batch size must be positive"))
	}
	if c.MaxRequeues < 0 {
		errs = append(errs, fmt.Errorf("max requeues must not be negative"))
	}
	if err := liveness.ValidateSchedule(c.LivenessSchedule); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.PropertyKinds(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// PropertyKinds возвращает виды properties для platform.NewPropertyManager.
func (c Config) PropertyKinds() (map[string]platform.PropertyKind, error) {
	kinds := make(map[string]platform.PropertyKind, len(c.PlatformProperties))
	for name, s := range c.PlatformProperties {
		kind, err := platform.ParseKind(s)
		if err != nil {
			return nil, fmt.Errorf("platform property %s: %w", name, err)
		}
		kinds[name] = kind
	}
	return kinds, nil
}

// UsesRabbitMQ — включены ли события и MQ-intake.
func (c Config) UsesRabbitMQ() bool {
	return c.RabbitMQURL != ""
}
