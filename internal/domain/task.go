package domain

import (
	"time"
)

// ActionState — текущее (изменяемое) состояние operation.
//
// ActionState меняется:
// - Dispatch Engine'ом при назначении на worker (QUEUED → EXECUTING)
// - Worker'ом через update_action (EXECUTING → COMPLETED_*)
// - При потере worker'а (EXECUTING → QUEUED)
type ActionState struct {
	// OperationID — идентификатор operation.
	OperationID OperationID `json:"operation_id"`

	// Stage — текущая стадия.
	Stage ActionStage `json:"stage"`

	// WorkerID — worker-владелец. Пустой, если стадия не EXECUTING.
	WorkerID WorkerID `json:"worker_id,omitempty"`

	// ActionDigest — digest action, которую выполняет operation.
	ActionDigest Digest `json:"action_digest"`

	// Requeues — сколько раз operation возвращалась в очередь из-за потери worker'а.
	Requeues int `json:"requeues"`

	// LastLostWorker — последний worker, потеря которого вернула operation в очередь.
	LastLostWorker WorkerID `json:"last_lost_worker,omitempty"`

	// ExitCode — код завершения (для COMPLETED_*).
	ExitCode int `json:"exit_code"`

	// Error — текст ошибки при COMPLETED_FAILURE.
	Error string `json:"error,omitempty"`

	// StartedAt — время последнего назначения на worker.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// UpdatedAt — время последнего изменения состояния.
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration возвращает продолжительность последнего выполнения.
func (s *ActionState) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// IsFinished возвращает true, если operation завершена.
func (s *ActionState) IsFinished() bool {
	return s.Stage.IsFinished()
}

// MarkExecuting назначает operation на worker.
func (s *ActionState) MarkExecuting(workerID WorkerID, now time.Time) {
	s.Stage = StageExecuting
	s.WorkerID = workerID
	s.StartedAt = &now
	s.FinishedAt = nil
	s.UpdatedAt = now
}

// MarkCompleted применяет терминальное обновление от worker'а.
// Владелец очищается: у завершённой operation его нет.
func (s *ActionState) MarkCompleted(update OperationUpdate, now time.Time) {
	s.Stage = update.Stage()
	s.WorkerID = ""
	s.ExitCode = update.ExitCode
	s.Error = update.Error
	s.FinishedAt = &now
	s.UpdatedAt = now
}

// Requeue возвращает operation в очередь после потери worker'а.
func (s *ActionState) Requeue(lost WorkerID, now time.Time) {
	s.Stage = StageQueued
	s.WorkerID = ""
	s.Requeues++
	s.LastLostWorker = lost
	s.StartedAt = nil
	s.UpdatedAt = now
}

// CanRequeue проверяет, можно ли ещё раз вернуть operation в очередь.
// maxRequeues <= 0 — без ограничений.
func (s *ActionState) CanRequeue(maxRequeues int) bool {
	return maxRequeues <= 0 || s.Requeues < maxRequeues
}
