// Package liveness периодически вызывает выселение worker'ов без keep-alive.
//
// Sweeper — внешний триггер для scheduler.RemoveTimedoutWorkers: по расписанию
// cron он берёт текущее время из clock.Clock и передаёт его планировщику.
// Само решение о выселении принимает планировщик.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Foreman/internal/clock"
	"github.com/shaiso/Foreman/internal/domain"
)

// DefaultSchedule — расписание по умолчанию.
const DefaultSchedule = "@every 1s"

// cronParser — парсер расписаний: стандартные cron-выражения
// (с необязательными секундами) и дескрипторы вида "@every 5s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Evictor — то, что умеет выселять worker'ов по времени.
type Evictor interface {
	RemoveTimedoutWorkers(ctx context.Context, now domain.WorkerTimestamp) error
}

// Sweeper вызывает Evictor по расписанию.
type Sweeper struct {
	evictor  Evictor
	clock    clock.Clock
	schedule string
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// Config — конфигурация Sweeper.
type Config struct {
	Evictor  Evictor
	Clock    clock.Clock // default: системные часы
	Schedule string      // default: "@every 1s"
	Logger   *slog.Logger
}

// New создаёт Sweeper и проверяет расписание.
func New(cfg Config) (*Sweeper, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		evictor:  cfg.Evictor,
		clock:    c,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start запускает расписание. Перекрывающиеся запуски пропускаются.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("liveness sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c

	s.logger.Info("liveness sweeper started", "schedule", s.schedule)
	return nil
}

// Stop останавливает расписание и ждёт завершения текущего запуска.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("liveness sweeper stopped")
}

// Sweep выполняет одну проверку с текущим временем.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := domain.TimestampFrom(s.clock.Now())
	return s.evictor.RemoveTimedoutWorkers(ctx, now)
}

// ValidateSchedule проверяет расписание.
func ValidateSchedule(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return nil
}
