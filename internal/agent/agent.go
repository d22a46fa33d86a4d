// Package agent — сторона worker'а в протоколе с планировщиком через RabbitMQ.
//
// Agent периодически публикует keep-alive и отправляет обновления operations,
// которые на стороне планировщика принимает intake. Выполнение самих actions
// сюда не входит.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/Foreman/internal/clock"
	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/mq"
)

const defaultInterval = time.Second

// ErrStopped — agent остановлен.
var ErrStopped = errors.New("agent stopped")

// Publisher — то, через что agent отправляет сообщения. Реализуется *mq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, exchange mq.Exchange, routingKey mq.RoutingKey, msgType mq.MessageType, payload any) error
}

// Agent отправляет keep-alive и обновления от имени одного worker'а.
type Agent struct {
	workerID  domain.WorkerID
	publisher Publisher
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// Config — конфигурация Agent.
type Config struct {
	WorkerID  domain.WorkerID
	Publisher Publisher
	Clock     clock.Clock   // default: системные часы
	Interval  time.Duration // период keep-alive (default: 1s), должен быть меньше WorkerTimeout планировщика
	Logger    *slog.Logger
}

// New создаёт Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.WorkerID == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		workerID:  cfg.WorkerID,
		publisher: cfg.Publisher,
		clock:     c,
		interval:  interval,
		logger:    logger.With("worker_id", cfg.WorkerID),
	}, nil
}

// Start запускает цикл keep-alive. Первый keep-alive отправляется сразу.
func (a *Agent) Start(ctx context.Context) error {
	if a.stopped.Load() {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.keepAliveLoop(ctx)
	}()

	a.logger.Info("agent started", "interval", a.interval)
	return nil
}

// Stop останавливает цикл keep-alive и ждёт его завершения.
func (a *Agent) Stop() {
	a.stopped.Store(true)
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.wg.Wait()
	a.logger.Info("agent stopped")
}

func (a *Agent) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.sendKeepAlive(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendKeepAlive(ctx)
		}
	}
}

func (a *Agent) sendKeepAlive(ctx context.Context) {
	if err := a.SendKeepAlive(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("failed to send keep-alive", "error", err)
	}
}

// SendKeepAlive публикует один keep-alive с текущим временем.
func (a *Agent) SendKeepAlive(ctx context.Context) error {
	payload := mq.KeepAlivePayload{
		WorkerID:  a.workerID,
		Timestamp: domain.TimestampFrom(a.clock.Now()),
	}
	if err := a.publisher.PublishJSON(ctx, mq.ExchangeWorkers, mq.RoutingKeyKeepAlive, mq.MessageTypeKeepAlive, payload); err != nil {
		return fmt.Errorf("publish keep-alive: %w", err)
	}
	return nil
}

// ReportUpdate публикует обновление operation.
func (a *Agent) ReportUpdate(ctx context.Context, operationID domain.OperationID, update domain.OperationUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	payload := mq.ActionUpdatePayload{
		WorkerID:    a.workerID,
		OperationID: operationID,
		Kind:        update.Kind,
		ExitCode:    update.ExitCode,
		Error:       update.Error,
	}
	if err := a.publisher.PublishJSON(ctx, mq.ExchangeWorkers, mq.RoutingKeyUpdate, mq.MessageTypeActionUpdate, payload); err != nil {
		return fmt.Errorf("publish update for %s: %w", operationID, err)
	}

	a.logger.Debug("operation update sent",
		"operation_id", operationID,
		"kind", update.Kind,
	)
	return nil
}

var _ Publisher = (*mq.Publisher)(nil)
