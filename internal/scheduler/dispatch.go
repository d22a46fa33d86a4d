package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/opstate"
)

type candidate struct {
	id   domain.OperationID
	info *domain.ActionInfo
}

// DoTryMatch выполняет один проход dispatch.
//
// Просматривает QUEUED operations в порядке (priority desc, insert asc)
// страницами по BatchSize, пока очередь не кончится или не останется
// свободных worker'ов. Каждая operation назначается первому подходящему
// worker'у в порядке регистрации. Подходящий worker: не на паузе,
// не draining, есть свободный слот, capabilities удовлетворяют требованиям.
// Перед проходом повторяются отложенные requeue удалённых worker'ов.
func (s *Scheduler) DoTryMatch(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.MatchDuration.Observe(time.Since(start).Seconds())
	}()

	var matched int
	err := s.mutate(ctx, func() error {
		pendingErr := s.retryPendingLocked(ctx, "")

		var err error
		matched, err = s.matchLocked(ctx)
		return errors.Join(pendingErr, err)
	})

	if matched > 0 {
		s.logger.Debug("dispatch pass completed", "assigned", matched)
	}
	return err
}

func (s *Scheduler) matchLocked(ctx context.Context) (int, error) {
	var (
		matched int
		errs    []error
		// skipped — operations, оставшиеся в QUEUED в начале очереди;
		// назначенные уходят из QUEUED и не сдвигают следующую страницу.
		skipped int
	)

	for s.anyWorkerAvailableLocked() {
		page, err := s.queuedLocked(ctx, skipped)
		if err != nil {
			errs = append(errs, err)
			break
		}

		for _, c := range page {
			if !s.anyWorkerAvailableLocked() {
				break
			}

			w := s.findWorkerLocked(c.info)
			if w == nil {
				skipped++
				continue
			}

			if err := s.store.AssignOperation(ctx, c.id, w.id); err != nil {
				if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
					// operation ушла из QUEUED между чтением и назначением
					continue
				}
				skipped++
				errs = append(errs, fmt.Errorf("assign operation %s to %s: %w", c.id, w.id, err))
				continue
			}

			reserved := maps.Clone(c.info.PlatformProperties)
			w.running[c.id] = reserved
			w.available = s.properties.Reserve(w.available, reserved)
			matched++

			s.metrics.OperationsDispatched.Inc()
			s.recordLocked(Event{
				Kind:        EventOperationExecuting,
				WorkerID:    w.id,
				OperationID: c.id,
				Stage:       domain.StageExecuting,
			})
		}

		if len(page) < s.batchSize {
			break
		}
	}

	return matched, errors.Join(errs...)
}

// queuedLocked читает страницу очереди и закрывает stream до начала назначений.
func (s *Scheduler) queuedLocked(ctx context.Context, offset int) ([]candidate, error) {
	stream, err := s.store.FilterOperations(ctx, opstate.Filter{
		Stages: opstate.StageQueued,
		Offset: offset,
		Limit:  s.batchSize,
		Order:  opstate.OrderDispatch,
	})
	if err != nil {
		return nil, fmt.Errorf("filter queued operations: %w", err)
	}
	defer stream.Close()

	var out []candidate
	for len(out) < s.batchSize && stream.Next(ctx) {
		res := stream.Result()
		info, err := res.AsActionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("get action info %s: %w", res.OperationID(), err)
		}
		out = append(out, candidate{id: res.OperationID(), info: info})
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("read queued operations: %w", err)
	}
	return out, nil
}

// findWorkerLocked — first-fit по порядку регистрации.
func (s *Scheduler) findWorkerLocked(info *domain.ActionInfo) *worker {
	for _, id := range s.order {
		w := s.workers[id]
		if w.canAcceptWork() && s.properties.Satisfies(info.PlatformProperties, w.available) {
			return w
		}
	}
	return nil
}

func (s *Scheduler) anyWorkerAvailableLocked() bool {
	for _, w := range s.workers {
		if w.canAcceptWork() {
			return true
		}
	}
	return false
}
