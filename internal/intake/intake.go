// Package intake превращает сообщения worker'ов из RabbitMQ в вызовы планировщика.
//
// Очереди:
//   - workers.keepalive → WorkerKeepAliveReceived
//   - workers.updates   → UpdateAction
//
// Ошибки, которые не исправятся повтором (неизвестный worker, чужая operation,
// битое сообщение), отклоняются в DLQ. Ошибки хранилища возвращают сообщение в очередь.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/mq"
	"github.com/shaiso/Foreman/internal/scheduler"
	"github.com/shaiso/Foreman/internal/telemetry"
)

// Intake — потребитель сообщений worker'ов.
type Intake struct {
	scheduler scheduler.WorkerScheduler
	conn      *mq.Connection
	prefetch  int
	logger    *slog.Logger

	consumers  []*mq.Consumer
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Intake.
type Config struct {
	Scheduler scheduler.WorkerScheduler
	Conn      *mq.Connection // нужен только для Start
	Prefetch  int            // default: 50
	Logger    *slog.Logger
}

// New создаёт Intake.
func New(cfg Config) *Intake {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 50
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Intake{
		scheduler: cfg.Scheduler,
		conn:      cfg.Conn,
		prefetch:  prefetch,
		logger:    logger,
	}
}

// Start запускает consumers обеих очередей.
func (i *Intake) Start(ctx context.Context) error {
	if i.conn == nil {
		return fmt.Errorf("intake: no rabbitmq connection")
	}

	ctx, cancel := context.WithCancel(ctx)
	i.cancelFunc = cancel

	i.consumers = []*mq.Consumer{
		mq.NewConsumer(i.conn, i.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueWorkerKeepAlive),
			Handler:  i.Handle,
			Prefetch: i.prefetch,
		}),
		mq.NewConsumer(i.conn, i.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueActionUpdates),
			Handler:  i.Handle,
			Prefetch: i.prefetch,
		}),
	}

	for _, c := range i.consumers {
		i.wg.Add(1)
		go func(c *mq.Consumer) {
			defer i.wg.Done()
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				i.logger.Error("intake consumer error", "error", err)
			}
		}(c)
	}

	i.logger.Info("intake started")
	return nil
}

// Stop останавливает consumers и ждёт их завершения.
func (i *Intake) Stop() {
	if i.cancelFunc != nil {
		i.cancelFunc()
	}
	for _, c := range i.consumers {
		c.Stop()
	}
	i.wg.Wait()
	i.logger.Info("intake stopped")
}

// Handle обрабатывает одно сообщение. Реализует mq.Handler.
func (i *Intake) Handle(ctx context.Context, d *mq.Delivery) error {
	ctx = telemetry.WithLogger(ctx, i.logger.With("message_id", d.Message.ID))

	switch d.Message.Type {
	case mq.MessageTypeKeepAlive:
		return i.handleKeepAlive(ctx, &d.Message)
	case mq.MessageTypeActionUpdate:
		return i.handleActionUpdate(ctx, &d.Message)
	default:
		return mq.Permanent(fmt.Errorf("unexpected message type %q", d.Message.Type))
	}
}

func (i *Intake) handleKeepAlive(ctx context.Context, msg *mq.Message) error {
	p, err := mq.ParsePayload[mq.KeepAlivePayload](msg)
	if err != nil {
		return mq.Permanent(err)
	}
	if p.WorkerID == "" {
		return mq.Permanent(fmt.Errorf("keep-alive without worker_id"))
	}

	return classify(i.scheduler.WorkerKeepAliveReceived(ctx, p.WorkerID, p.Timestamp))
}

func (i *Intake) handleActionUpdate(ctx context.Context, msg *mq.Message) error {
	p, err := mq.ParsePayload[mq.ActionUpdatePayload](msg)
	if err != nil {
		return mq.Permanent(err)
	}

	update := p.Update()
	if err := update.Validate(); err != nil {
		return mq.Permanent(err)
	}

	err = i.scheduler.UpdateAction(ctx, p.WorkerID, p.OperationID, update)
	if errors.Is(err, domain.ErrOwnershipViolation) {
		telemetry.FromContext(ctx).Warn("rejected update from non-owner",
			"worker_id", p.WorkerID,
			"operation_id", p.OperationID,
			"kind", p.Kind,
		)
	}
	return classify(err)
}

// classify помечает ошибки, повтор которых бесполезен.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrOwnershipViolation),
		errors.Is(err, domain.ErrInvalidTransition):
		return mq.Permanent(err)
	default:
		return err
	}
}
