package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shaiso/Foreman/internal/domain"
)

// Причины удаления worker'а.
const (
	reasonRemoved = "removed"
	reasonTimeout = "timeout"
)

// timeoutSeconds — WorkerTimeout в секундах WorkerTimestamp, округлённый вверх:
// дробный интервал не должен выселять worker'а раньше срока.
func (s *Scheduler) timeoutSeconds() domain.WorkerTimestamp {
	return domain.WorkerTimestamp((s.workerTimeout + time.Second - 1) / time.Second)
}

// RemoveTimedoutWorkers выселяет worker'ов, у которых
// lastUpdate + WorkerTimeout < now, с той же семантикой, что RemoveWorker.
//
// Безопасен при повторных и конкурентных вызовах: скан и выселение
// выполняются под одной блокировкой. Каждый вызов также повторяет
// отложенные requeue уже удалённых worker'ов.
func (s *Scheduler) RemoveTimedoutWorkers(ctx context.Context, now domain.WorkerTimestamp) error {
	timeout := s.timeoutSeconds()

	var evicted []domain.WorkerID
	err := s.mutate(ctx, func() error {
		errs := []error{s.retryPendingLocked(ctx, "")}

		for _, id := range s.order {
			if s.workers[id].lastUpdate+timeout < now {
				evicted = append(evicted, id)
			}
		}
		for _, id := range evicted {
			errs = append(errs, s.evictLocked(ctx, id, reasonTimeout))
		}
		return errors.Join(errs...)
	})

	if len(evicted) > 0 {
		s.logger.Warn("evicted timed out workers",
			"count", len(evicted),
			"workers", evicted,
			"now", now,
		)
		s.notify()
	}
	return err
}

// evictLocked удаляет worker'а из реестра и возвращает его operations в очередь.
//
// Worker удаляется сразу. Operations, requeue которых не удался, остаются
// в s.pending и повторяются следующим проходом dispatch, sweep'ом или
// повторным RemoveWorker.
func (s *Scheduler) evictLocked(ctx context.Context, workerID domain.WorkerID, reason string) error {
	w, ok := s.workers[workerID]
	if !ok {
		return nil
	}

	delete(s.workers, workerID)
	s.order = slices.DeleteFunc(s.order, func(id domain.WorkerID) bool { return id == workerID })

	var errs []error
	for _, opID := range slices.Sorted(maps.Keys(w.running)) {
		if err := s.requeueLocked(ctx, opID, workerID); err != nil {
			s.pending[opID] = workerID
			s.logger.Error("failed to requeue operation, will retry",
				"worker_id", workerID,
				"operation_id", opID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	s.metrics.RequeuesPending.Set(float64(len(s.pending)))

	s.metrics.WorkersConnected.Set(float64(len(s.workers)))
	s.metrics.WorkersRemoved.WithLabelValues(reason).Inc()
	s.recordLocked(Event{Kind: EventWorkerRemoved, WorkerID: workerID, Reason: reason})

	s.logger.Info("worker removed",
		"worker_id", workerID,
		"reason", reason,
		"operations", len(w.running),
	)

	if len(errs) > 0 {
		return fmt.Errorf("remove worker %s: %w", workerID, errors.Join(errs...))
	}
	return nil
}

// requeueLocked возвращает operation потерянного worker'а в очередь
// (или завершает её, если лимит requeue исчерпан) и записывает событие.
func (s *Scheduler) requeueLocked(ctx context.Context, opID domain.OperationID, lost domain.WorkerID) error {
	state, err := s.store.RequeueOperation(ctx, opID, lost, s.maxRequeues)
	if err != nil {
		return fmt.Errorf("requeue operation %s: %w", opID, err)
	}

	if state.Stage == domain.StageQueued {
		s.metrics.OperationsRequeued.Inc()
		s.recordLocked(Event{
			Kind:        EventOperationRequeued,
			WorkerID:    lost,
			OperationID: opID,
			Stage:       state.Stage,
			Requeues:    state.Requeues,
		})
		return nil
	}

	s.metrics.OperationsCompleted.WithLabelValues(state.Stage.String()).Inc()
	s.recordLocked(Event{
		Kind:        EventOperationCompleted,
		WorkerID:    lost,
		OperationID: opID,
		Stage:       state.Stage,
		Requeues:    state.Requeues,
		Reason:      state.Error,
	})
	return nil
}

// retryPendingLocked повторяет отложенные requeue. Пустой workerID — все.
//
// Operation, которой больше нет или которая уже не принадлежит
// потерянному worker'у, снимается с учёта без ошибки.
func (s *Scheduler) retryPendingLocked(ctx context.Context, workerID domain.WorkerID) error {
	if len(s.pending) == 0 {
		return nil
	}

	var errs []error
	for _, opID := range slices.Sorted(maps.Keys(s.pending)) {
		lost := s.pending[opID]
		if workerID != "" && lost != workerID {
			continue
		}

		err := s.requeueLocked(ctx, opID, lost)
		switch {
		case err == nil:
			delete(s.pending, opID)
			s.logger.Info("pending requeue completed", "worker_id", lost, "operation_id", opID)
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrOwnershipViolation):
			delete(s.pending, opID)
			s.logger.Warn("pending requeue dropped", "worker_id", lost, "operation_id", opID, "error", err)
		default:
			errs = append(errs, err)
		}
	}

	s.metrics.RequeuesPending.Set(float64(len(s.pending)))
	return errors.Join(errs...)
}

func (s *Scheduler) hasPendingLocked(workerID domain.WorkerID) bool {
	for _, lost := range s.pending {
		if lost == workerID {
			return true
		}
	}
	return false
}
