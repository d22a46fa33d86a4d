package api

import (
	"log/slog"
	"time"

	"github.com/shaiso/Foreman/internal/clock"
	"github.com/shaiso/Foreman/internal/opstate"
	"github.com/shaiso/Foreman/internal/scheduler"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	scheduler scheduler.WorkerScheduler
	actions   scheduler.ActionScheduler
	store     opstate.Manager
	clock     clock.Clock
	startedAt time.Time
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Scheduler scheduler.WorkerScheduler
	Actions   scheduler.ActionScheduler
	Store     opstate.Manager

	Clock  clock.Clock
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		scheduler: cfg.Scheduler,
		actions:   cfg.Actions,
		store:     cfg.Store,
		clock:     c,
		startedAt: c.Now(),
		logger:    logger,
	}
}
