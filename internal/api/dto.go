package api

import (
	"fmt"
	"time"

	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/opstate"
)

// Worker DTOs

// WorkerResponse — ответ с состоянием worker'а.
type WorkerResponse struct {
	ID                  domain.WorkerID        `json:"id"`
	PlatformProperties  map[string]string      `json:"platform_properties"`
	LastUpdateTimestamp domain.WorkerTimestamp `json:"last_update_timestamp"`
	ConnectedTimestamp  domain.WorkerTimestamp `json:"connected_timestamp"`
	IsPaused            bool                   `json:"is_paused"`
	IsDraining          bool                   `json:"is_draining"`
	CanAcceptWork       bool                   `json:"can_accept_work"`
	RunningOperations   []domain.OperationID   `json:"running_operations"`
	ActionsCompleted    uint64                 `json:"actions_completed"`
}

// WorkerFromDomain конвертирует domain.WorkerEntry в WorkerResponse.
func WorkerFromDomain(e domain.WorkerEntry) WorkerResponse {
	props := e.Info.PlatformProperties
	if props == nil {
		props = map[string]string{}
	}
	running := e.Info.RunningOperations
	if running == nil {
		running = []domain.OperationID{}
	}

	return WorkerResponse{
		ID:                  e.ID,
		PlatformProperties:  props,
		LastUpdateTimestamp: e.Info.LastUpdateTimestamp,
		ConnectedTimestamp:  e.Info.ConnectedTimestamp,
		IsPaused:            e.Info.IsPaused,
		IsDraining:          e.Info.IsDraining,
		CanAcceptWork:       e.Info.CanAcceptWork,
		RunningOperations:   running,
		ActionsCompleted:    e.Info.ActionsCompleted,
	}
}

// AddWorkerRequest — регистрация worker'а.
type AddWorkerRequest struct {
	ID                 domain.WorkerID   `json:"id"`
	PlatformProperties map[string]string `json:"platform_properties,omitempty"`
	MaxInflightTasks   int               `json:"max_inflight_tasks,omitempty"`
	Paused             bool              `json:"paused,omitempty"`
}

// KeepAliveRequest — keep-alive. Timestamp 0 — текущее время сервера.
type KeepAliveRequest struct {
	Timestamp domain.WorkerTimestamp `json:"timestamp,omitempty"`
}

// DrainRequest — включение/выключение draining.
type DrainRequest struct {
	Draining bool `json:"draining"`
}

// UpdateActionRequest — обновление operation от worker'а.
type UpdateActionRequest struct {
	Kind     domain.UpdateKind `json:"kind"`
	ExitCode int               `json:"exit_code,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Operation DTOs

// SubmitActionRequest — постановка action в очередь.
// Digest'ы в формате "hash-size", Timeout — строка time.Duration ("30s").
type SubmitActionRequest struct {
	ActionDigest       string            `json:"action_digest,omitempty"`
	CommandDigest      string            `json:"command_digest"`
	InputRootDigest    string            `json:"input_root_digest"`
	Priority           int32             `json:"priority,omitempty"`
	Timeout            string            `json:"timeout,omitempty"`
	PlatformProperties map[string]string `json:"platform_properties,omitempty"`
}

// ToDomain конвертирует запрос в domain.ActionInfo.
func (r SubmitActionRequest) ToDomain(now time.Time) (*domain.ActionInfo, error) {
	info := &domain.ActionInfo{
		Priority:           r.Priority,
		PlatformProperties: r.PlatformProperties,
		LoadTimestamp:      now,
		InsertTimestamp:    now,
	}

	var err error
	if r.ActionDigest != "" {
		if info.ActionDigest, err = domain.ParseDigest(r.ActionDigest); err != nil {
			return nil, fmt.Errorf("action_digest: %w", err)
		}
	}
	if info.CommandDigest, err = domain.ParseDigest(r.CommandDigest); err != nil {
		return nil, fmt.Errorf("command_digest: %w", err)
	}
	if info.InputRootDigest, err = domain.ParseDigest(r.InputRootDigest); err != nil {
		return nil, fmt.Errorf("input_root_digest: %w", err)
	}
	if r.Timeout != "" {
		if info.Timeout, err = time.ParseDuration(r.Timeout); err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
	}

	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// SubmitActionResponse — ответ на постановку action.
type SubmitActionResponse struct {
	OperationID domain.OperationID `json:"operation_id"`
}

// OperationResponse — ответ с operation (состояние + описание action).
type OperationResponse struct {
	OperationID        domain.OperationID `json:"operation_id"`
	Stage              string             `json:"stage"`
	WorkerID           domain.WorkerID    `json:"worker_id,omitempty"`
	ActionDigest       string             `json:"action_digest"`
	CommandDigest      string             `json:"command_digest"`
	InputRootDigest    string             `json:"input_root_digest"`
	Priority           int32              `json:"priority"`
	Timeout            string             `json:"timeout,omitempty"`
	PlatformProperties map[string]string  `json:"platform_properties,omitempty"`
	Requeues           int                `json:"requeues"`
	LastLostWorker     domain.WorkerID    `json:"last_lost_worker,omitempty"`
	ExitCode           int                `json:"exit_code"`
	Error              string             `json:"error,omitempty"`
	InsertTimestamp    time.Time          `json:"insert_timestamp"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	FinishedAt         *time.Time         `json:"finished_at,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// OperationFromDomain конвертирует opstate.Operation в OperationResponse.
func OperationFromDomain(op opstate.Operation) OperationResponse {
	resp := OperationResponse{
		OperationID:        op.State.OperationID,
		Stage:              op.State.Stage.String(),
		WorkerID:           op.State.WorkerID,
		ActionDigest:       op.State.ActionDigest.String(),
		CommandDigest:      op.Info.CommandDigest.String(),
		InputRootDigest:    op.Info.InputRootDigest.String(),
		Priority:           op.Info.Priority,
		PlatformProperties: op.Info.PlatformProperties,
		Requeues:           op.State.Requeues,
		LastLostWorker:     op.State.LastLostWorker,
		ExitCode:           op.State.ExitCode,
		Error:              op.State.Error,
		InsertTimestamp:    op.Info.InsertTimestamp,
		StartedAt:          op.State.StartedAt,
		FinishedAt:         op.State.FinishedAt,
		UpdatedAt:          op.State.UpdatedAt,
	}
	if op.Info.Timeout > 0 {
		resp.Timeout = op.Info.Timeout.String()
	}
	return resp
}

// System DTOs

// StatusResponse — сводка состояния планировщика.
type StatusResponse struct {
	Workers              int               `json:"workers"`
	WorkersAcceptingWork int               `json:"workers_accepting_work"`
	WorkersDraining      int               `json:"workers_draining"`
	WorkersPaused        int               `json:"workers_paused"`
	Operations           OperationCounts   `json:"operations"`
	PropertyKinds        map[string]string `json:"property_kinds"`
	UptimeSeconds        int64             `json:"uptime_seconds"`
}

// OperationCounts — число operations по стадиям.
type OperationCounts struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Executing int `json:"executing"`
	Completed int `json:"completed"`
}

// WorkerCounts — число worker'ов по состоянию.
type WorkerCounts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Paused   int `json:"paused"`
	Draining int `json:"draining"`
}

// MetricsResponse — rollup для /scheduler/metrics.
type MetricsResponse struct {
	Workers       WorkerCounts    `json:"workers"`
	Operations    OperationCounts `json:"operations"`
	UptimeSeconds int64           `json:"uptime_seconds"`
}

// MetricsFromStatus сворачивает StatusResponse в MetricsResponse.
func MetricsFromStatus(s StatusResponse) MetricsResponse {
	return MetricsResponse{
		Workers: WorkerCounts{
			Total:    s.Workers,
			Active:   s.WorkersAcceptingWork,
			Paused:   s.WorkersPaused,
			Draining: s.WorkersDraining,
		},
		Operations:    s.Operations,
		UptimeSeconds: s.UptimeSeconds,
	}
}

// HealthResponse — ответ health check.
type HealthResponse struct {
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}
