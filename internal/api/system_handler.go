package api

import (
	"context"
	"net/http"

	"github.com/shaiso/Foreman/internal/opstate"
)

// schedulerStatus считает сводку по snapshot'у реестра и одному проходу
// по operations. Собственного состояния у мониторинга нет.
//
// queued = не завершена и без владельца, executing = не завершена и с владельцем,
// completed = завершена.
func (h *Handler) schedulerStatus(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	for _, e := range h.scheduler.GetAllWorkersInfo(ctx) {
		resp.Workers++
		if e.Info.CanAcceptWork {
			resp.WorkersAcceptingWork++
		}
		if e.Info.IsDraining {
			resp.WorkersDraining++
		}
		if e.Info.IsPaused {
			resp.WorkersPaused++
		}
	}

	stream, err := h.store.FilterOperations(ctx, opstate.Filter{Stages: opstate.StageAny})
	if err != nil {
		return StatusResponse{}, err
	}
	defer stream.Close()

	for stream.Next(ctx) {
		state, err := stream.Result().AsState(ctx)
		if err != nil {
			return StatusResponse{}, err
		}

		resp.Operations.Total++
		switch {
		case state.IsFinished():
			resp.Operations.Completed++
		case state.WorkerID != "":
			resp.Operations.Executing++
		default:
			resp.Operations.Queued++
		}
	}
	if err := stream.Err(); err != nil {
		return StatusResponse{}, err
	}

	resp.PropertyKinds = make(map[string]string)
	for name, kind := range h.scheduler.GetPlatformPropertyManager().Kinds() {
		resp.PropertyKinds[name] = string(kind)
	}
	resp.UptimeSeconds = int64(h.clock.Now().Sub(h.startedAt).Seconds())
	return resp, nil
}

// SchedulerStatus возвращает сводку по worker'ам и operations.
// GET /api/v1/scheduler/status
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.schedulerStatus(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	Success(w, resp)
}

// SchedulerMetrics возвращает ту же сводку в виде rollup'а.
// GET /api/v1/scheduler/metrics
//
// Prometheus метрики процесса отдаются отдельно на /metrics.
func (h *Handler) SchedulerMetrics(w http.ResponseWriter, r *http.Request) {
	status, err := h.schedulerStatus(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	Success(w, MetricsFromStatus(status))
}

// Health возвращает uptime сервиса.
// GET /api/v1/system/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	uptime := h.clock.Now().Sub(h.startedAt)

	Success(w, HealthResponse{
		Status:        "ok",
		StartedAt:     h.startedAt,
		Uptime:        uptime.String(),
		UptimeSeconds: int64(uptime.Seconds()),
	})
}
