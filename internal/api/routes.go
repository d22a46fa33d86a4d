package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		RequestID(h.logger),
		Logging(h.logger),
	)

	// Workers: мониторинг
	mux.Handle("GET /api/v1/workers", chain(http.HandlerFunc(h.ListWorkers)))
	mux.Handle("GET /api/v1/workers/{id}", chain(http.HandlerFunc(h.GetWorker)))

	// Workers: адаптер для worker'ов и операторов
	mux.Handle("POST /api/v1/workers", chain(http.HandlerFunc(h.AddWorker)))
	mux.Handle("DELETE /api/v1/workers/{id}", chain(http.HandlerFunc(h.RemoveWorker)))
	mux.Handle("POST /api/v1/workers/{id}/keepalive", chain(http.HandlerFunc(h.KeepAlive)))
	mux.Handle("PUT /api/v1/workers/{id}/drain", chain(http.HandlerFunc(h.SetDrain)))
	mux.Handle("POST /api/v1/workers/{id}/operations/{op}", chain(http.HandlerFunc(h.UpdateAction)))

	// Operations
	mux.Handle("GET /api/v1/operations", chain(http.HandlerFunc(h.ListOperations)))
	mux.Handle("POST /api/v1/operations", chain(http.HandlerFunc(h.SubmitAction)))
	mux.Handle("GET /api/v1/operations/{id}", chain(http.HandlerFunc(h.GetOperation)))

	// Scheduler & system
	mux.Handle("GET /api/v1/scheduler/status", chain(http.HandlerFunc(h.SchedulerStatus)))
	mux.Handle("GET /api/v1/scheduler/metrics", chain(http.HandlerFunc(h.SchedulerMetrics)))
	mux.Handle("GET /api/v1/system/health", chain(http.HandlerFunc(h.Health)))
}
