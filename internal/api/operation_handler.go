package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/opstate"
)

// defaultOperationsLimit — лимит списка operations, если limit не задан.
const defaultOperationsLimit = 1000

// ListOperations возвращает operations с фильтрацией.
// GET /api/v1/operations?stage=&worker_id=&limit=
//
// stage: queued | executing | completed | cache_check, иначе — любая стадия.
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultOperationsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	filter := opstate.Filter{
		Stages:   opstate.ParseStageFlags(q.Get("stage")),
		WorkerID: domain.WorkerID(q.Get("worker_id")),
		Limit:    limit,
		Order:    opstate.OrderInsertion,
	}

	stream, err := h.store.FilterOperations(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	ops, err := opstate.Collect(r.Context(), stream, limit)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]OperationResponse, len(ops))
	for i, op := range ops {
		result[i] = OperationFromDomain(op)
	}

	List(w, result, len(result))
}

// GetOperation возвращает operation по ID.
// GET /api/v1/operations/{id}
func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := domain.OperationID(r.PathValue("id"))

	op, err := opstate.Get(r.Context(), h.store, id)
	if HandleError(w, h.logger, err, fmt.Sprintf("operation %s not found", id)) {
		return
	}

	Success(w, OperationFromDomain(*op))
}

// SubmitAction ставит action в очередь.
// POST /api/v1/operations
func (h *Handler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req SubmitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	info, err := req.ToDomain(h.clock.Now())
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := h.scheduler.GetPlatformPropertyManager().Validate(info.PlatformProperties); err != nil {
		BadRequest(w, err.Error())
		return
	}

	id, err := h.actions.AddAction(r.Context(), info)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, SubmitActionResponse{OperationID: id})
}
