package opstate

import (
	"context"
	"strings"

	"github.com/shaiso/Foreman/internal/domain"
)

// Manager — контракт Operation State Manager.
type Manager interface {
	// AddAction сохраняет новую operation в стадии QUEUED.
	AddAction(ctx context.Context, info *domain.ActionInfo) (domain.OperationID, error)

	// FilterOperations возвращает ленивую последовательность operations.
	FilterOperations(ctx context.Context, filter Filter) (Stream, error)

	// AssignOperation переводит QUEUED operation в EXECUTING с владельцем workerID.
	AssignOperation(ctx context.Context, id domain.OperationID, workerID domain.WorkerID) error

	// UpdateOperation применяет обновление от worker'а-владельца.
	// Если workerID не владеет operation — domain.ErrOwnershipViolation.
	UpdateOperation(ctx context.Context, id domain.OperationID, workerID domain.WorkerID, update domain.OperationUpdate) error

	// RequeueOperation возвращает EXECUTING operation потерянного worker'а в QUEUED.
	// Если maxRequeues > 0 и лимит исчерпан, operation завершается с ошибкой.
	// Возвращает итоговое состояние.
	RequeueOperation(ctx context.Context, id domain.OperationID, lost domain.WorkerID, maxRequeues int) (*domain.ActionState, error)
}

// Stream — ленивая конечная последовательность результатов фильтрации.
//
// Использование:
//
//	stream, err := m.FilterOperations(ctx, filter)
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next(ctx) {
//	    res := stream.Result()
//	    ...
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Потребитель может остановиться в любой момент; Close освобождает ресурсы.
type Stream interface {
	Next(ctx context.Context) bool
	Result() ActionStateResult
	Err() error
	Close()
}

// ActionStateResult — handle одной operation из Stream.
type ActionStateResult interface {
	OperationID() domain.OperationID
	AsState(ctx context.Context) (*domain.ActionState, error)
	AsActionInfo(ctx context.Context) (*domain.ActionInfo, error)
}

// StageFlags — маска стадий для фильтрации.
type StageFlags uint8

const (
	StageCacheCheck StageFlags = 1 << iota
	StageQueued
	StageExecuting
	StageCompleted

	// StageAny — любая стадия. Нулевое значение Filter.Stages трактуется так же.
	StageAny = StageCacheCheck | StageQueued | StageExecuting | StageCompleted
)

// Matches проверяет, входит ли стадия в маску.
func (f StageFlags) Matches(stage domain.ActionStage) bool {
	if f == 0 {
		f = StageAny
	}
	switch stage {
	case domain.StageCacheCheck:
		return f&StageCacheCheck != 0
	case domain.StageQueued:
		return f&StageQueued != 0
	case domain.StageExecuting:
		return f&StageExecuting != 0
	case domain.StageCompletedSuccess, domain.StageCompletedFailure:
		return f&StageCompleted != 0
	default:
		return f == StageAny
	}
}

// Stages возвращает список стадий, входящих в маску.
func (f StageFlags) Stages() []domain.ActionStage {
	if f == 0 {
		f = StageAny
	}
	var out []domain.ActionStage
	if f&StageCacheCheck != 0 {
		out = append(out, domain.StageCacheCheck)
	}
	if f&StageQueued != 0 {
		out = append(out, domain.StageQueued)
	}
	if f&StageExecuting != 0 {
		out = append(out, domain.StageExecuting)
	}
	if f&StageCompleted != 0 {
		out = append(out, domain.StageCompletedSuccess, domain.StageCompletedFailure)
	}
	return out
}

// ParseStageFlags парсит значение query-параметра stage.
// Неизвестные значения дают StageAny.
func ParseStageFlags(s string) StageFlags {
	switch strings.ToLower(s) {
	case "queued":
		return StageQueued
	case "executing":
		return StageExecuting
	case "completed":
		return StageCompleted
	case "cache_check":
		return StageCacheCheck
	default:
		return StageAny
	}
}

// Order — порядок элементов Stream.
type Order int

const (
	// OrderInsertion — в порядке добавления.
	OrderInsertion Order = iota

	// OrderDispatch — приоритет по убыванию, затем InsertTimestamp по возрастанию.
	OrderDispatch
)

// Filter — параметры FilterOperations.
type Filter struct {
	// Stages — маска стадий (0 = любая).
	Stages StageFlags

	// OperationID — если задан, только эта operation.
	OperationID domain.OperationID

	// WorkerID — если задан, только operations этого владельца.
	WorkerID domain.WorkerID

	// Offset — сколько первых подходящих элементов пропустить.
	Offset int

	// Limit — максимум элементов после Offset (0 = без ограничения).
	Limit int

	// Order — порядок элементов.
	Order Order
}

// Matches проверяет состояние по всем условиям, кроме Offset и Limit.
func (f Filter) Matches(state *domain.ActionState) bool {
	if !f.Stages.Matches(state.Stage) {
		return false
	}
	if f.OperationID != "" && state.OperationID != f.OperationID {
		return false
	}
	if f.WorkerID != "" && state.WorkerID != f.WorkerID {
		return false
	}
	return true
}
