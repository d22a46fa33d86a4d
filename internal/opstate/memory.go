package opstate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Foreman/internal/clock"
	"github.com/shaiso/Foreman/internal/domain"
)

// MemoryStore — in-memory реализация Manager.
//
// FilterOperations делает snapshot подходящих ID под RLock и сразу
// отпускает блокировку. Handles материализуют состояние лениво, поэтому
// AsState отражает самую свежую версию operation.
type MemoryStore struct {
	mu    sync.RWMutex
	ops   map[domain.OperationID]*memoryRecord
	seq   uint64
	clock clock.Clock
}

type memoryRecord struct {
	seq   uint64
	state domain.ActionState
	info  *domain.ActionInfo
}

// NewMemoryStore создаёт пустой MemoryStore.
// Если c == nil, используются системные часы.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.Real{}
	}
	return &MemoryStore{
		ops:   make(map[domain.OperationID]*memoryRecord),
		clock: c,
	}
}

// AddAction сохраняет operation в стадии QUEUED.
func (s *MemoryStore) AddAction(ctx context.Context, info *domain.ActionInfo) (domain.OperationID, error) {
	if err := info.Validate(); err != nil {
		return "", fmt.Errorf("validate action: %w", err)
	}

	now := s.clock.Now()
	info = info.Clone()
	if info.InsertTimestamp.IsZero() {
		info.InsertTimestamp = now
	}
	if info.LoadTimestamp.IsZero() {
		info.LoadTimestamp = now
	}

	id := domain.NewOperationID()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.ops[id] = &memoryRecord{
		seq: s.seq,
		state: domain.ActionState{
			OperationID:  id,
			Stage:        domain.StageQueued,
			ActionDigest: info.ActionDigest,
			UpdatedAt:    now,
		},
		info: info,
	}
	return id, nil
}

// FilterOperations возвращает snapshot подходящих operations.
func (s *MemoryStore) FilterOperations(ctx context.Context, filter Filter) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []*memoryRecord
	if filter.OperationID != "" {
		if rec, ok := s.ops[filter.OperationID]; ok && filter.Matches(&rec.state) {
			matched = append(matched, rec)
		}
	} else {
		for _, rec := range s.ops {
			if filter.Matches(&rec.state) {
				matched = append(matched, rec)
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.Order == OrderDispatch {
			if a.info.RunsBefore(b.info) {
				return true
			}
			if b.info.RunsBefore(a.info) {
				return false
			}
		}
		return a.seq < b.seq
	})

	if filter.Offset > 0 {
		matched = matched[min(filter.Offset, len(matched)):]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	ids := make([]domain.OperationID, len(matched))
	for i, rec := range matched {
		ids[i] = rec.state.OperationID
	}
	return &memoryStream{store: s, ids: ids, pos: -1}, nil
}

// AssignOperation переводит QUEUED → EXECUTING.
func (s *MemoryStore) AssignOperation(ctx context.Context, id domain.OperationID, workerID domain.WorkerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.ops[id]
	if !ok {
		return fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
	}
	if rec.state.Stage != domain.StageQueued {
		return fmt.Errorf("assign operation %s in stage %s: %w", id, rec.state.Stage, domain.ErrInvalidTransition)
	}

	rec.state.MarkExecuting(workerID, s.clock.Now())
	return nil
}

// UpdateOperation применяет обновление от владельца.
func (s *MemoryStore) UpdateOperation(ctx context.Context, id domain.OperationID, workerID domain.WorkerID, update domain.OperationUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.ops[id]
	if !ok {
		return fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
	}
	if rec.state.Stage != domain.StageExecuting || rec.state.WorkerID != workerID {
		return fmt.Errorf("worker %s does not own operation %s: %w", workerID, id, domain.ErrOwnershipViolation)
	}

	now := s.clock.Now()
	if update.IsTerminal() {
		rec.state.MarkCompleted(update, now)
	} else {
		rec.state.UpdatedAt = now
	}
	return nil
}

// RequeueOperation возвращает operation потерянного worker'а в очередь.
func (s *MemoryStore) RequeueOperation(ctx context.Context, id domain.OperationID, lost domain.WorkerID, maxRequeues int) (*domain.ActionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.ops[id]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
	}
	if rec.state.Stage != domain.StageExecuting || rec.state.WorkerID != lost {
		return nil, fmt.Errorf("worker %s does not own operation %s: %w", lost, id, domain.ErrOwnershipViolation)
	}

	now := s.clock.Now()
	if rec.state.CanRequeue(maxRequeues) {
		rec.state.Requeue(lost, now)
	} else {
		rec.state.LastLostWorker = lost
		rec.state.MarkCompleted(domain.OperationUpdate{
			Kind:  domain.UpdateFailed,
			Error: fmt.Sprintf("worker %s lost, requeue limit %d reached", lost, maxRequeues),
		}, now)
	}

	state := rec.state
	return &state, nil
}

// Len возвращает число хранимых operations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ops)
}

func (s *MemoryStore) load(id domain.OperationID) (*domain.ActionState, *domain.ActionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.ops[id]
	if !ok {
		return nil, nil, fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
	}
	state := rec.state
	return &state, rec.info, nil
}

// --- Stream ---

type memoryStream struct {
	store *MemoryStore
	ids   []domain.OperationID
	pos   int
	err   error
}

func (m *memoryStream) Next(ctx context.Context) bool {
	if m.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		m.err = err
		return false
	}
	if m.pos+1 >= len(m.ids) {
		return false
	}
	m.pos++
	return true
}

func (m *memoryStream) Result() ActionStateResult {
	if m.pos < 0 || m.pos >= len(m.ids) {
		return nil
	}
	return &memoryResult{store: m.store, id: m.ids[m.pos]}
}

func (m *memoryStream) Err() error {
	return m.err
}

func (m *memoryStream) Close() {
	m.pos = len(m.ids)
}

type memoryResult struct {
	store *MemoryStore
	id    domain.OperationID
}

func (r *memoryResult) OperationID() domain.OperationID {
	return r.id
}

func (r *memoryResult) AsState(ctx context.Context) (*domain.ActionState, error) {
	state, _, err := r.store.load(r.id)
	return state, err
}

func (r *memoryResult) AsActionInfo(ctx context.Context) (*domain.ActionInfo, error) {
	_, info, err := r.store.load(r.id)
	if err != nil {
		return nil, err
	}
	return info.Clone(), nil
}

var _ Manager = (*MemoryStore)(nil)
