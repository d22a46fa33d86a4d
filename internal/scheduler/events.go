package scheduler

import (
	"context"
	"time"

	"github.com/shaiso/Foreman/internal/domain"
)

// EventKind — тип события планировщика.
type EventKind string

const (
	EventWorkerAdded        EventKind = "worker.added"
	EventWorkerRemoved      EventKind = "worker.removed"
	EventOperationQueued    EventKind = "operation.queued"
	EventOperationExecuting EventKind = "operation.executing"
	EventOperationCompleted EventKind = "operation.completed"
	EventOperationRequeued  EventKind = "operation.requeued"
)

// Event — переход состояния, о котором сообщается наружу.
type Event struct {
	// Seq — порядковый номер перехода, строго растёт в пределах процесса.
	Seq         uint64             `json:"seq"`
	Kind        EventKind          `json:"kind"`
	WorkerID    domain.WorkerID    `json:"worker_id,omitempty"`
	OperationID domain.OperationID `json:"operation_id,omitempty"`
	Stage       domain.ActionStage `json:"stage,omitempty"`
	Requeues    int                `json:"requeues,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Time        time.Time          `json:"time"`
}

// EventSink получает события планировщика.
//
// Publish вызывается после снятия блокировки планировщика, поэтому события
// конкурентных мутаций могут прийти не в том порядке, в котором произошли
// переходы. Порядок переходов задаёт Event.Seq; внутри одной мутации
// события приходят по возрастанию Seq.
// Ошибки логируются и не влияют на результат операции.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) error { return nil }
