package scheduler

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
	"github.com/shaiso/Foreman/internal/opstate"
	"github.com/shaiso/Foreman/internal/platform"
	"github.com/shaiso/Foreman/internal/telemetry"
)

// Default configuration values.
const (
	defaultWorkerTimeout = 5 * time.Second
	defaultMatchInterval = time.Second
	defaultBatchSize     = 100
)

// ErrStopped — планировщик остановлен.
var ErrStopped = errors.New("scheduler stopped")

// WorkerScheduler — операции, которые worker'ы, операторы и мониторинг
// вызывают у планировщика.
type WorkerScheduler interface {
	// GetPlatformPropertyManager возвращает Capability Matcher планировщика.
	GetPlatformPropertyManager() *platform.PropertyManager

	// AddWorker регистрирует worker'а. Дубликат ID — domain.ErrAlreadyConnected.
	AddWorker(ctx context.Context, worker domain.Worker) error

	// UpdateAction принимает обновление operation от worker'а-владельца.
	UpdateAction(ctx context.Context, workerID domain.WorkerID, operationID domain.OperationID, update domain.OperationUpdate) error

	// WorkerKeepAliveReceived фиксирует keep-alive.
	WorkerKeepAliveReceived(ctx context.Context, workerID domain.WorkerID, timestamp domain.WorkerTimestamp) error

	// RemoveWorker удаляет worker'а и возвращает его operations в очередь.
	RemoveWorker(ctx context.Context, workerID domain.WorkerID) error

	// RemoveTimedoutWorkers выселяет worker'ов, у которых last + timeout < now.
	RemoveTimedoutWorkers(ctx context.Context, now domain.WorkerTimestamp) error

	// SetDrainWorker включает или выключает draining.
	SetDrainWorker(ctx context.Context, workerID domain.WorkerID, isDraining bool) error

	// GetWorkerIds возвращает snapshot зарегистрированных WorkerID.
	GetWorkerIds(ctx context.Context) []domain.WorkerID

	// GetAllWorkersInfo возвращает snapshot состояния всех worker'ов.
	GetAllWorkersInfo(ctx context.Context) []domain.WorkerEntry
}

// ActionScheduler — операции клиентов.
type ActionScheduler interface {
	// AddAction ставит action в очередь и возвращает OperationID.
	AddAction(ctx context.Context, info *domain.ActionInfo) (domain.OperationID, error)
}

// Scheduler — production реализация WorkerScheduler.
type Scheduler struct {
	// Collaborators
	store      opstate.Manager
	properties *platform.PropertyManager
	clock      clock.Clock
	events     EventSink
	metrics    *telemetry.SchedulerMetrics

	// Registry (guarded by mu)
	mu      sync.Mutex
	workers map[domain.WorkerID]*worker
	order   []domain.WorkerID
	outbox  []Event
	seq     uint64

	// pending — operations удалённых worker'ов, requeue которых не удался.
	pending map[domain.OperationID]domain.WorkerID

	// snapshot — неизменяемая копия реестра для читателей.
	snapshot atomic.Pointer[[]domain.WorkerEntry]

	// Configuration
	workerTimeout time.Duration
	matchInterval time.Duration
	batchSize     int
	maxRequeues   int

	// Lifecycle
	logger     *slog.Logger
	wake       chan struct{}
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// Config — конфигурация Scheduler.
type Config struct {
	// Store — Operation State Manager (обязательно).
	Store opstate.Manager

	// Properties — Capability Matcher (default: все свойства exact).
	Properties *platform.PropertyManager

	// Clock — источник времени (default: системные часы).
	Clock clock.Clock

	// Events — получатель событий (опционально).
	Events EventSink

	// Metrics — Prometheus метрики (default: отдельный registry).
	Metrics *telemetry.SchedulerMetrics

	WorkerTimeout time.Duration // keep-alive интервал (default: 5s)
	MatchInterval time.Duration // интервал фонового dispatch (default: 1s)
	BatchSize     int           // размер страницы очереди при dispatch (default: 100)
	MaxRequeues   int           // лимит requeue после потери worker'а (0 = без лимита)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	workerTimeout := cfg.WorkerTimeout
	if workerTimeout <= 0 {
		workerTimeout = defaultWorkerTimeout
	}

	matchInterval := cfg.MatchInterval
	if matchInterval <= 0 {
		matchInterval = defaultMatchInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	properties := cfg.Properties
	if properties == nil {
		properties = platform.NewPropertyManager(nil)
	}

	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}

	events := cfg.Events
	if events == nil {
		events = nopSink{}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewSchedulerMetrics(nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		store:         cfg.Store,
		properties:    properties,
		clock:         c,
		events:        events,
		metrics:       metrics,
		workers:       make(map[domain.WorkerID]*worker),
		pending:       make(map[domain.OperationID]domain.WorkerID),
		workerTimeout: workerTimeout,
		matchInterval: matchInterval,
		batchSize:     batchSize,
		maxRequeues:   cfg.MaxRequeues,
		logger:        logger,
		wake:          make(chan struct{}, 1),
	}
	s.snapshot.Store(&[]domain.WorkerEntry{})
	return s
}

// Start запускает фоновый dispatch loop.
//
// Loop просыпается после мутаций, которые могут дать новое назначение,
// и дополнительно раз в MatchInterval.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting scheduler",
		"worker_timeout", s.workerTimeout,
		"match_interval", s.matchInterval,
		"batch_size", s.batchSize,
		"max_requeues", s.maxRequeues,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.matchLoop(ctx)
	}()

	s.logger.Info("scheduler started")
	return nil
}

// Stop останавливает dispatch loop и ждёт его завершения.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)

	s.logger.Info("stopping scheduler...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	s.logger.Info("scheduler stopped",
		"workers", len(s.GetWorkerIds(context.Background())),
	)
}

// GetPlatformPropertyManager возвращает Capability Matcher.
func (s *Scheduler) GetPlatformPropertyManager() *platform.PropertyManager {
	return s.properties
}

// AddAction сохраняет новую operation и будит dispatch.
//
// Запись в store идёт под блокировкой планировщика, чтобы событие
// operation.queued получило Seq раньше любого перехода этой operation.
func (s *Scheduler) AddAction(ctx context.Context, info *domain.ActionInfo) (domain.OperationID, error) {
	if err := s.properties.Validate(info.PlatformProperties); err != nil {
		return "", fmt.Errorf("validate platform properties: %w", err)
	}

	var id domain.OperationID
	err := s.mutate(ctx, func() error {
		var err error
		id, err = s.store.AddAction(ctx, info)
		if err != nil {
			return fmt.Errorf("add action: %w", err)
		}

		s.metrics.ActionsAdded.Inc()
		s.recordLocked(Event{
			Kind:        EventOperationQueued,
			OperationID: id,
			Stage:       domain.StageQueued,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	s.notify()

	telemetry.WithOperationID(s.logger, id.String()).Debug("action queued",
		"priority", info.Priority,
		"action_digest", info.ActionDigest.String(),
	)
	return id, nil
}

// matchLoop — цикл фонового dispatch.
func (s *Scheduler) matchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.matchInterval)
	defer ticker.Stop()

	// Первый проход сразу (подхватываем operations, оставшиеся в store)
	s.runMatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.runMatch(ctx)
		case <-ticker.C:
			s.runMatch(ctx)
		}
	}
}

func (s *Scheduler) runMatch(ctx context.Context) {
	if err := s.DoTryMatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("dispatch pass failed", "error", err)
	}
}

// notify будит dispatch loop, не блокируясь.
func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// mutate выполняет fn под блокировкой, обновляет snapshot и
// отправляет накопленные события уже после снятия блокировки.
func (s *Scheduler) mutate(ctx context.Context, fn func() error) error {
	var events []Event
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		err := fn()
		s.publishSnapshotLocked()
		events, s.outbox = s.outbox, nil
		return err
	}()

	s.emit(ctx, events)
	return err
}

// recordLocked нумерует событие и добавляет его в outbox.
func (s *Scheduler) recordLocked(ev Event) {
	s.seq++
	ev.Seq = s.seq
	if ev.Time.IsZero() {
		ev.Time = s.clock.Now()
	}
	s.outbox = append(s.outbox, ev)
}

func (s *Scheduler) emit(ctx context.Context, events []Event) {
	for _, ev := range events {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn("failed to publish scheduler event",
				"kind", ev.Kind,
				"worker_id", ev.WorkerID,
				"operation_id", ev.OperationID,
				"error", err,
			)
		}
	}
}

var (
	_ WorkerScheduler = (*Scheduler)(nil)
	_ ActionScheduler = (*Scheduler)(nil)
)
