// Package schedulertest содержит in-memory test double для scheduler.WorkerScheduler.
package schedulertest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/opstate"
	"github.com/shaiso/Foreman/internal/platform"
	"github.com/shaiso/Foreman/internal/scheduler"
)

// KeepAlive — записанный вызов WorkerKeepAliveReceived.
type KeepAlive struct {
	WorkerID  domain.WorkerID
	Timestamp domain.WorkerTimestamp
}

// Update — записанный вызов UpdateAction.
type Update struct {
	WorkerID    domain.WorkerID
	OperationID domain.OperationID
	Update      domain.OperationUpdate
}

// Fake — упрощённый WorkerScheduler без dispatch.
//
// Хранит worker'ов в порядке регистрации, записывает вызовы и соблюдает
// контракт ошибок (NotFound, AlreadyConnected, OwnershipViolation).
// Назначения задаются вручную через Assign.
type Fake struct {
	// Err, если задан, возвращается всеми мутирующими вызовами.
	Err error

	// Store получает actions из AddAction (опционально).
	Store opstate.Manager

	mu         sync.Mutex
	properties *platform.PropertyManager
	workers    map[domain.WorkerID]*domain.WorkerInfo
	order      []domain.WorkerID
	keepAlives []KeepAlive
	updates    []Update
	removed    []domain.WorkerID
	actions    []*domain.ActionInfo
}

// New создаёт пустой Fake.
func New() *Fake {
	return &Fake{
		properties: platform.NewPropertyManager(nil),
		workers:    make(map[domain.WorkerID]*domain.WorkerInfo),
	}
}

func (f *Fake) GetPlatformPropertyManager() *platform.PropertyManager {
	return f.properties
}

func (f *Fake) AddWorker(ctx context.Context, w domain.Worker) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.workers[w.ID]; ok {
		return fmt.Errorf("worker %s: %w", w.ID, domain.ErrAlreadyConnected)
	}

	f.workers[w.ID] = &domain.WorkerInfo{
		PlatformProperties:  maps.Clone(w.PlatformProperties),
		LastUpdateTimestamp: w.LastUpdateTimestamp,
		IsPaused:            w.Paused,
		CanAcceptWork:       !w.Paused,
		RunningOperations:   []domain.OperationID{},
		ConnectedTimestamp:  w.ConnectedTimestamp,
	}
	f.order = append(f.order, w.ID)
	return nil
}

func (f *Fake) UpdateAction(ctx context.Context, workerID domain.WorkerID, operationID domain.OperationID, update domain.OperationUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	w, ok := f.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, domain.ErrNotFound)
	}
	if !slices.Contains(w.RunningOperations, operationID) {
		return fmt.Errorf("worker %s does not own operation %s: %w", workerID, operationID, domain.ErrOwnershipViolation)
	}

	f.updates = append(f.updates, Update{WorkerID: workerID, OperationID: operationID, Update: update})
	if update.IsTerminal() {
		w.RunningOperations = slices.DeleteFunc(w.RunningOperations, func(id domain.OperationID) bool { return id == operationID })
		w.ActionsCompleted++
	}
	return nil
}

func (f *Fake) WorkerKeepAliveReceived(ctx context.Context, workerID domain.WorkerID, timestamp domain.WorkerTimestamp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	w, ok := f.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, domain.ErrNotFound)
	}

	f.keepAlives = append(f.keepAlives, KeepAlive{WorkerID: workerID, Timestamp: timestamp})
	if timestamp >= w.LastUpdateTimestamp {
		w.LastUpdateTimestamp = timestamp
		w.IsPaused = false
		w.CanAcceptWork = !w.IsDraining
	}
	return nil
}

func (f *Fake) RemoveWorker(ctx context.Context, workerID domain.WorkerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.workers[workerID]; !ok {
		return fmt.Errorf("worker %s: %w", workerID, domain.ErrNotFound)
	}
	f.removeLocked(workerID)
	return nil
}

// RemoveTimedoutWorkers удаляет worker'ов с LastUpdateTimestamp < now.
// Keep-alive интервала у Fake нет.
func (f *Fake) RemoveTimedoutWorkers(ctx context.Context, now domain.WorkerTimestamp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	for _, id := range slices.Clone(f.order) {
		if f.workers[id].LastUpdateTimestamp < now {
			f.removeLocked(id)
		}
	}
	return nil
}

func (f *Fake) SetDrainWorker(ctx context.Context, workerID domain.WorkerID, isDraining bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	w, ok := f.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, domain.ErrNotFound)
	}
	w.IsDraining = isDraining
	w.CanAcceptWork = !isDraining && !w.IsPaused
	return nil
}

func (f *Fake) GetWorkerIds(ctx context.Context) []domain.WorkerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.order)
}

func (f *Fake) GetAllWorkersInfo(ctx context.Context) []domain.WorkerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.WorkerEntry, 0, len(f.order))
	for _, id := range f.order {
		info := *f.workers[id]
		info.RunningOperations = slices.Clone(info.RunningOperations)
		out = append(out, domain.WorkerEntry{ID: id, Info: info})
	}
	return out
}

// AddAction записывает action и, если задан Store, сохраняет её там.
func (f *Fake) AddAction(ctx context.Context, info *domain.ActionInfo) (domain.OperationID, error) {
	f.mu.Lock()
	if f.Err != nil {
		f.mu.Unlock()
		return "", f.Err
	}
	f.actions = append(f.actions, info.Clone())
	f.mu.Unlock()

	if f.Store == nil {
		return domain.NewOperationID(), nil
	}
	return f.Store.AddAction(ctx, info)
}

// Assign добавляет operation в набор worker'а.
func (f *Fake) Assign(workerID domain.WorkerID, operationID domain.OperationID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.workers[workerID]; ok {
		w.RunningOperations = append(w.RunningOperations, operationID)
	}
}

// KeepAlives возвращает записанные keep-alive.
func (f *Fake) KeepAlives() []KeepAlive {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.keepAlives)
}

// Updates возвращает записанные обновления.
func (f *Fake) Updates() []Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.updates)
}

// Removed возвращает удалённых worker'ов.
func (f *Fake) Removed() []domain.WorkerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.removed)
}

// Actions возвращает записанные actions.
func (f *Fake) Actions() []*domain.ActionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.actions)
}

func (f *Fake) removeLocked(id domain.WorkerID) {
	delete(f.workers, id)
	f.order = slices.DeleteFunc(f.order, func(w domain.WorkerID) bool { return w == id })
	f.removed = append(f.removed, id)
}

var (
	_ scheduler.WorkerScheduler = (*Fake)(nil)
	_ scheduler.ActionScheduler = (*Fake)(nil)
)
