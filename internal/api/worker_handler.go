package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaiso/Foreman/internal/domain"
)

// ListWorkers возвращает snapshot всех worker'ов.
// GET /api/v1/workers
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	entries := h.scheduler.GetAllWorkersInfo(r.Context())

	result := make([]WorkerResponse, len(entries))
	for i, e := range entries {
		result[i] = WorkerFromDomain(e)
	}

	List(w, result, len(result))
}

// GetWorker возвращает worker'а по ID.
// GET /api/v1/workers/{id}
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id := domain.WorkerID(r.PathValue("id"))

	for _, e := range h.scheduler.GetAllWorkersInfo(r.Context()) {
		if e.ID == id {
			Success(w, WorkerFromDomain(e))
			return
		}
	}

	NotFound(w, fmt.Sprintf("worker %s not found", id))
}

// AddWorker регистрирует worker'а.
// POST /api/v1/workers
func (h *Handler) AddWorker(w http.ResponseWriter, r *http.Request) {
	var req AddWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.ID == "" {
		BadRequest(w, "id is required")
		return
	}
	if req.MaxInflightTasks < 0 {
		BadRequest(w, "max_inflight_tasks must not be negative")
		return
	}
	if err := h.scheduler.GetPlatformPropertyManager().Validate(req.PlatformProperties); err != nil {
		BadRequest(w, err.Error())
		return
	}

	err := h.scheduler.AddWorker(r.Context(), domain.Worker{
		ID:                 req.ID,
		PlatformProperties: req.PlatformProperties,
		MaxInflightTasks:   req.MaxInflightTasks,
		Paused:             req.Paused,
	})
	if HandleError(w, h.logger, err, "") {
		return
	}

	for _, e := range h.scheduler.GetAllWorkersInfo(r.Context()) {
		if e.ID == req.ID {
			Created(w, WorkerFromDomain(e))
			return
		}
	}
	// worker мог быть удалён конкурентно сразу после регистрации
	Created(w, WorkerResponse{ID: req.ID})
}

// RemoveWorker удаляет worker'а, его operations возвращаются в очередь.
// DELETE /api/v1/workers/{id}
func (h *Handler) RemoveWorker(w http.ResponseWriter, r *http.Request) {
	id := domain.WorkerID(r.PathValue("id"))

	err := h.scheduler.RemoveWorker(r.Context(), id)
	if HandleError(w, h.logger, err, fmt.Sprintf("worker %s not found", id)) {
		return
	}

	NoContent(w)
}

// KeepAlive фиксирует keep-alive worker'а.
// POST /api/v1/workers/{id}/keepalive
func (h *Handler) KeepAlive(w http.ResponseWriter, r *http.Request) {
	id := domain.WorkerID(r.PathValue("id"))

	var req KeepAliveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
	}

	ts := req.Timestamp
	if ts == 0 {
		ts = domain.TimestampFrom(h.clock.Now())
	}

	err := h.scheduler.WorkerKeepAliveReceived(r.Context(), id, ts)
	if HandleError(w, h.logger, err, fmt.Sprintf("worker %s not found", id)) {
		return
	}

	NoContent(w)
}

// SetDrain включает или выключает draining.
// PUT /api/v1/workers/{id}/drain
func (h *Handler) SetDrain(w http.ResponseWriter, r *http.Request) {
	id := domain.WorkerID(r.PathValue("id"))

	var req DrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	err := h.scheduler.SetDrainWorker(r.Context(), id, req.Draining)
	if HandleError(w, h.logger, err, fmt.Sprintf("worker %s not found", id)) {
		return
	}

	for _, e := range h.scheduler.GetAllWorkersInfo(r.Context()) {
		if e.ID == id {
			Success(w, WorkerFromDomain(e))
			return
		}
	}
	NoContent(w)
}

// UpdateAction принимает обновление operation от worker'а.
// POST /api/v1/workers/{id}/operations/{op}
func (h *Handler) UpdateAction(w http.ResponseWriter, r *http.Request) {
	workerID := domain.WorkerID(r.PathValue("id"))
	operationID := domain.OperationID(r.PathValue("op"))

	var req UpdateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	update := domain.OperationUpdate{Kind: req.Kind, ExitCode: req.ExitCode, Error: req.Error}
	if err := update.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	err := h.scheduler.UpdateAction(r.Context(), workerID, operationID, update)
	if HandleError(w, h.logger, err, "") {
		return
	}

	NoContent(w)
}
