package scheduler

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/telemetry"
)

// worker — запись реестра. Живёт только под Scheduler.mu.
type worker struct {
	id domain.WorkerID

	// properties — заявленные capabilities, available — остаток после резервирования minimum-свойств.
	properties map[string]string
	available  map[string]string

	maxInflight int
	connected   domain.WorkerTimestamp
	lastUpdate  domain.WorkerTimestamp
	paused      bool
	draining    bool
	completed   uint64

	// running — назначенные operations → зарезервированные требования.
	running map[domain.OperationID]map[string]string
}

// canAcceptWork — worker может получить новую operation.
func (w *worker) canAcceptWork() bool {
	if w.paused || w.draining {
		return false
	}
	return w.maxInflight <= 0 || len(w.running) < w.maxInflight
}

func (w *worker) info() domain.WorkerInfo {
	running := slices.Sorted(maps.Keys(w.running))
	if running == nil {
		running = []domain.OperationID{}
	}

	return domain.WorkerInfo{
		PlatformProperties:  maps.Clone(w.properties),
		LastUpdateTimestamp: w.lastUpdate,
		IsPaused:            w.paused,
		IsDraining:          w.draining,
		CanAcceptWork:       w.canAcceptWork(),
		RunningOperations:   running,
		ConnectedTimestamp:  w.connected,
		ActionsCompleted:    w.completed,
	}
}

// AddWorker регистрирует worker'а.
//
// Worker с уже зарегистрированным ID отклоняется (domain.ErrAlreadyConnected),
// существующая запись не меняется.
func (s *Scheduler) AddWorker(ctx context.Context, w domain.Worker) error {
	if w.ID == "" {
		return fmt.Errorf("worker id is required")
	}
	if w.MaxInflightTasks < 0 {
		return fmt.Errorf("max inflight tasks must not be negative")
	}
	if err := s.properties.Validate(w.PlatformProperties); err != nil {
		return fmt.Errorf("validate platform properties: %w", err)
	}

	err := s.mutate(ctx, func() error {
		if _, ok := s.workers[w.ID]; ok {
			return fmt.Errorf("worker %s: %w", w.ID, domain.ErrAlreadyConnected)
		}

		connected := w.ConnectedTimestamp
		if connected == 0 {
			connected = domain.TimestampFrom(s.clock.Now())
		}
		lastUpdate := w.LastUpdateTimestamp
		if lastUpdate == 0 {
			lastUpdate = connected
		}

		s.workers[w.ID] = &worker{
			id:          w.ID,
			properties:  maps.Clone(w.PlatformProperties),
			available:   maps.Clone(w.PlatformProperties),
			maxInflight: w.MaxInflightTasks,
			connected:   connected,
			lastUpdate:  lastUpdate,
			paused:      w.Paused,
			running:     make(map[domain.OperationID]map[string]string),
		}
		s.order = append(s.order, w.ID)

		s.metrics.WorkersConnected.Set(float64(len(s.workers)))
		s.recordLocked(Event{Kind: EventWorkerAdded, WorkerID: w.ID})
		return nil
	})
	if err != nil {
		return err
	}

	telemetry.WithWorkerID(s.logger, w.ID.String()).Info("worker added",
		"platform_properties", w.PlatformProperties,
		"max_inflight_tasks", w.MaxInflightTasks,
		"paused", w.Paused,
	)
	s.notify()
	return nil
}

// UpdateAction применяет обновление от worker'а.
//
// Владение проверяется по реестру: operation должна быть в наборе
// назначенных worker'у. При нарушении состояние не меняется.
func (s *Scheduler) UpdateAction(ctx context.Context, workerID domain.WorkerID, operationID domain.OperationID, update domain.OperationUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	var freed bool
	err := s.mutate(ctx, func() error {
		w, ok := s.workers[workerID]
		if !ok {
			return fmt.Errorf("worker %s: %w", workerID, domain.ErrNotFound)
		}

		reserved, owned := w.running[operationID]
		if !owned {
			s.metrics.OwnershipViolations.Inc()
			return fmt.Errorf("worker %s does not own operation %s: %w", workerID, operationID, domain.ErrOwnershipViolation)
		}

		if err := s.store.UpdateOperation(ctx, operationID, workerID, update); err != nil {
			return fmt.Errorf("update operation %s: %w", operationID, err)
		}

		if !update.IsTerminal() {
			return nil
		}

		s.releaseLocked(w, operationID, reserved)
		w.completed++
		freed = true

		s.metrics.OperationsCompleted.WithLabelValues(update.Stage().String()).Inc()
		s.recordLocked(Event{
			Kind:        EventOperationCompleted,
			WorkerID:    workerID,
			OperationID: operationID,
			Stage:       update.Stage(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	if freed {
		s.logger.Info("operation completed",
			"worker_id", workerID,
			"operation_id", operationID,
			"stage", update.Stage(),
			"exit_code", update.ExitCode,
		)
		s.notify()
	}
	return nil
}

// WorkerKeepAliveReceived фиксирует keep-alive.
//
// Время последнего keep-alive только растёт: более старый timestamp
// принимается, но игнорируется. Первый принятый keep-alive снимает паузу.
func (s *Scheduler) WorkerKeepAliveReceived(ctx context.Context, workerID domain.WorkerID, timestamp domain.WorkerTimestamp) error {
	var resumed bool
	err := s.mutate(ctx, func() error {
		w, ok := s.workers[workerID]
		if !ok {
			return fmt.Errorf("worker %s: %w", workerID, domain.ErrNotFound)
		}

		if timestamp < w.lastUpdate {
			return nil
		}
		w.lastUpdate = timestamp

		if w.paused {
			w.paused = false
			resumed = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if resumed {
		s.logger.Info("worker resumed", "worker_id", workerID)
		s.notify()
	}
	return nil
}

// RemoveWorker удаляет worker'а.
//
// Все назначенные ему operations возвращаются в QUEUED без владельца.
// Если для уже удалённого worker'а остались неудавшиеся requeue, вызов
// повторяет их; иначе возвращает domain.ErrNotFound и ничего не меняет.
func (s *Scheduler) RemoveWorker(ctx context.Context, workerID domain.WorkerID) error {
	err := s.mutate(ctx, func() error {
		if _, ok := s.workers[workerID]; !ok {
			if s.hasPendingLocked(workerID) {
				return s.retryPendingLocked(ctx, workerID)
			}
			return fmt.Errorf("worker %s: %w", workerID, domain.ErrNotFound)
		}
		return s.evictLocked(ctx, workerID, reasonRemoved)
	})
	s.notify()
	return err
}

// SetDrainWorker включает или выключает draining.
// Назначенные operations продолжают выполняться.
func (s *Scheduler) SetDrainWorker(ctx context.Context, workerID domain.WorkerID, isDraining bool) error {
	err := s.mutate(ctx, func() error {
		w, ok := s.workers[workerID]
		if !ok {
			return fmt.Errorf("worker %s: %w", workerID, domain.ErrNotFound)
		}
		w.draining = isDraining
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("worker drain updated", "worker_id", workerID, "draining", isDraining)
	if !isDraining {
		s.notify()
	}
	return nil
}

// GetWorkerIds возвращает ID зарегистрированных worker'ов в порядке регистрации.
func (s *Scheduler) GetWorkerIds(ctx context.Context) []domain.WorkerID {
	entries := *s.snapshot.Load()
	ids := make([]domain.WorkerID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// GetAllWorkersInfo возвращает snapshot всех worker'ов в порядке регистрации.
// Значения могут устареть к моменту чтения.
func (s *Scheduler) GetAllWorkersInfo(ctx context.Context) []domain.WorkerEntry {
	return slices.Clone(*s.snapshot.Load())
}

// publishSnapshotLocked пересобирает snapshot для читателей.
func (s *Scheduler) publishSnapshotLocked() {
	entries := make([]domain.WorkerEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, domain.WorkerEntry{ID: id, Info: s.workers[id].info()})
	}
	s.snapshot.Store(&entries)
}

// releaseLocked убирает operation из набора worker'а и возвращает
// зарезервированные minimum-свойства.
func (s *Scheduler) releaseLocked(w *worker, operationID domain.OperationID, reserved map[string]string) {
	delete(w.running, operationID)
	w.available = s.properties.Release(w.available, reserved)
}
