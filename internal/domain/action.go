package domain

import (
	"fmt"
	"time"
)

// ActionInfo — неизменяемое описание работы, которую выполняет operation.
//
// Создаётся клиентом при постановке action в очередь
// и больше не меняется (в т.ч. при requeue).
type ActionInfo struct {
	// ActionDigest — digest самой action.
	ActionDigest Digest `json:"action_digest"`

	// CommandDigest — digest команды.
	CommandDigest Digest `json:"command_digest"`

	// InputRootDigest — digest корня входных файлов.
	InputRootDigest Digest `json:"input_root_digest"`

	// Priority — приоритет, больше = важнее.
	Priority int32 `json:"priority"`

	// Timeout — ограничение времени выполнения.
	Timeout time.Duration `json:"timeout"`

	// PlatformProperties — требуемые capabilities (имя → значение).
	PlatformProperties map[string]string `json:"platform_properties,omitempty"`

	// LoadTimestamp — когда action была загружена из CAS.
	LoadTimestamp time.Time `json:"load_timestamp"`

	// InsertTimestamp — когда action попала в планировщик.
	// Используется как tie-break при равном приоритете.
	InsertTimestamp time.Time `json:"insert_timestamp"`
}

// Validate проверяет обязательные поля.
func (a *ActionInfo) Validate() error {
	if a.CommandDigest.Hash == "" {
		return fmt.Errorf("command digest is required")
	}
	if a.InputRootDigest.Hash == "" {
		return fmt.Errorf("input root digest is required")
	}
	if a.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// Clone возвращает копию без общих map.
func (a *ActionInfo) Clone() *ActionInfo {
	c := *a
	if a.PlatformProperties != nil {
		c.PlatformProperties = make(map[string]string, len(a.PlatformProperties))
		for k, v := range a.PlatformProperties {
			c.PlatformProperties[k] = v
		}
	}
	return &c
}

// RunsBefore сообщает, должна ли a диспетчеризоваться раньше b:
// приоритет по убыванию, затем время вставки по возрастанию.
func (a *ActionInfo) RunsBefore(b *ActionInfo) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.InsertTimestamp.Before(b.InsertTimestamp)
}

// UpdateKind — тип обновления, которое worker сообщает об operation.
type UpdateKind string

const (
	// UpdateExecuting — operation всё ещё выполняется.
	UpdateExecuting UpdateKind = "EXECUTING"

	// UpdateCompleted — operation завершена успешно.
	UpdateCompleted UpdateKind = "COMPLETED"

	// UpdateFailed — operation завершена с ошибкой.
	UpdateFailed UpdateKind = "FAILED"
)

// OperationUpdate — обновление от worker'а (update_action).
type OperationUpdate struct {
	Kind     UpdateKind `json:"kind"`
	ExitCode int        `json:"exit_code,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// IsTerminal возвращает true, если обновление завершает operation.
func (u OperationUpdate) IsTerminal() bool {
	return u.Kind == UpdateCompleted || u.Kind == UpdateFailed
}

// Stage возвращает стадию, в которую переводит обновление.
func (u OperationUpdate) Stage() ActionStage {
	switch u.Kind {
	case UpdateCompleted:
		return StageCompletedSuccess
	case UpdateFailed:
		return StageCompletedFailure
	case UpdateExecuting:
		return StageExecuting
	default:
		return StageUnknown
	}
}

// Validate проверяет, что тип обновления известен.
func (u OperationUpdate) Validate() error {
	switch u.Kind {
	case UpdateExecuting, UpdateCompleted, UpdateFailed:
		return nil
	default:
		return fmt.Errorf("unknown update kind %q", u.Kind)
	}
}
