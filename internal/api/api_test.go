package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Foreman/internal/clock"
	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/opstate"
	"github.com/shaiso/Foreman/internal/platform"
	"github.com/shaiso/Foreman/internal/scheduler"
	"github.com/shaiso/Foreman/internal/scheduler/schedulertest"
	"github.com/shaiso/Foreman/internal/telemetry"
)

type testServer struct {
	mux   *http.ServeMux
	sched *scheduler.Scheduler
	store *opstate.MemoryStore
	clock *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := clock.NewManual(time.Unix(1000, 0))
	store := opstate.NewMemoryStore(c)
	reg := prometheus.NewRegistry()

	sched := scheduler.New(scheduler.Config{
		Store:         store,
		Properties:    platform.NewPropertyManager(map[string]platform.PropertyKind{"cpu_count": platform.KindMinimum}),
		Clock:         c,
		Metrics:       telemetry.NewSchedulerMetrics(reg),
		WorkerTimeout: 10 * time.Second,
		Logger:        logger,
	})

	h := NewHandler(Config{
		Scheduler: sched,
		Actions:   sched,
		Store:     store,
		Clock:     c,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testServer{mux: mux, sched: sched, store: store, clock: c}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp.Error
}

func (s *testServer) submit(t *testing.T, props map[string]string) domain.OperationID {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/operations", SubmitActionRequest{
		ActionDigest:       "aa-1",
		CommandDigest:      "cc-2",
		InputRootDigest:    "ii-3",
		Timeout:            "30s",
		PlatformProperties: props,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeData[SubmitActionResponse](t, rec).OperationID
}

// --- Worker Tests ---

func TestAddWorker(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{
		ID:                 "w1",
		PlatformProperties: map[string]string{"cpu_count": "4"},
		MaxInflightTasks:   2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeData[WorkerResponse](t, rec)
	if got.ID != "w1" || got.PlatformProperties["cpu_count"] != "4" {
		t.Errorf("unexpected worker: %+v", got)
	}
	if got.ConnectedTimestamp != 1000 {
		t.Errorf("connected timestamp = %d, want 1000", got.ConnectedTimestamp)
	}
	if !got.CanAcceptWork {
		t.Error("new worker should accept work")
	}
}

func TestAddWorker_Duplicate(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1"})

	rec := s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestAddWorker_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing id", AddWorkerRequest{}},
		{"negative capacity", AddWorkerRequest{ID: "w1", MaxInflightTasks: -1}},
		{"non-numeric minimum", AddWorkerRequest{ID: "w1", PlatformProperties: map[string]string{"cpu_count": "many"}}},
		{"invalid body", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, "/api/v1/workers", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestListWorkers(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "b"})
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "a"})

	rec := s.do(t, http.MethodGet, "/api/v1/workers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	workers := decodeData[[]WorkerResponse](t, rec)
	if len(workers) != 2 || workers[0].ID != "b" || workers[1].ID != "a" {
		t.Errorf("expected registration order [b a], got %+v", workers)
	}
}

func TestGetWorker_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/workers/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrCodeNotFound {
		t.Errorf("unexpected error code %s", e.Code)
	}
}

func TestRemoveWorker(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1"})
	op := s.submit(t, nil)
	if err := s.sched.DoTryMatch(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := s.do(t, http.MethodDelete, "/api/v1/workers/w1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/operations/"+string(op), nil)
	got := decodeData[OperationResponse](t, rec)
	if got.Stage != string(domain.StageQueued) || got.WorkerID != "" || got.Requeues != 1 {
		t.Errorf("operation should be requeued without owner, got %+v", got)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/workers/w1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second remove: expected 404, got %d", rec.Code)
	}
}

func TestKeepAlive(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1", Paused: true})

	s.clock.Advance(5 * time.Second)
	rec := s.do(t, http.MethodPost, "/api/v1/workers/w1/keepalive", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeData[WorkerResponse](t, s.do(t, http.MethodGet, "/api/v1/workers/w1", nil))
	if got.LastUpdateTimestamp != 1005 {
		t.Errorf("last update = %d, want 1005 (server time)", got.LastUpdateTimestamp)
	}
	if got.IsPaused {
		t.Error("keep-alive should unpause worker")
	}

	rec = s.do(t, http.MethodPost, "/api/v1/workers/w1/keepalive", KeepAliveRequest{Timestamp: 1001})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("older keep-alive should be accepted, got %d", rec.Code)
	}
	got = decodeData[WorkerResponse](t, s.do(t, http.MethodGet, "/api/v1/workers/w1", nil))
	if got.LastUpdateTimestamp != 1005 {
		t.Errorf("older keep-alive must not move timestamp back, got %d", got.LastUpdateTimestamp)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/workers/ghost/keepalive", KeepAliveRequest{Timestamp: 1})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown worker: expected 404, got %d", rec.Code)
	}
}

func TestSetDrain(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1"})

	rec := s.do(t, http.MethodPut, "/api/v1/workers/w1/drain", DrainRequest{Draining: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeData[WorkerResponse](t, rec)
	if !got.IsDraining || got.CanAcceptWork {
		t.Errorf("draining worker must not accept work: %+v", got)
	}

	rec = s.do(t, http.MethodPut, "/api/v1/workers/ghost/drain", DrainRequest{Draining: true})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// --- Update Tests ---

func TestUpdateAction(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1"})
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w2"})
	op := s.submit(t, nil)
	if err := s.sched.DoTryMatch(context.Background()); err != nil {
		t.Fatal(err)
	}

	// w1 зарегистрирован первым и получает operation
	rec := s.do(t, http.MethodPost, "/api/v1/workers/w2/operations/"+string(op), UpdateActionRequest{Kind: domain.UpdateCompleted})
	if rec.Code != http.StatusConflict {
		t.Fatalf("non-owner: expected 409, got %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrCodeNotOwner {
		t.Errorf("unexpected error code %s", e.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/workers/w1/operations/"+string(op), UpdateActionRequest{Kind: "BOGUS"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/workers/w1/operations/"+string(op), UpdateActionRequest{Kind: domain.UpdateCompleted})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("owner: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeData[OperationResponse](t, s.do(t, http.MethodGet, "/api/v1/operations/"+string(op), nil))
	if got.Stage != string(domain.StageCompletedSuccess) {
		t.Errorf("stage = %s, want COMPLETED_SUCCESS", got.Stage)
	}
}

func TestUpdateAction_CollaboratorFailure(t *testing.T) {
	fake := schedulertest.New()
	fake.Err = errors.New("store unavailable")

	h := NewHandler(Config{
		Scheduler: fake,
		Actions:   fake,
		Store:     opstate.NewMemoryStore(clock.Real{}),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	body := strings.NewReader(`{"kind":"COMPLETED"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workers/w1/operations/op-1", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if e := decodeError(t, rec); !strings.Contains(e.Message, "store unavailable") {
		t.Errorf("error text should be reported, got %q", e.Message)
	}
}

// --- Operation Tests ---

func TestSubmitAction(t *testing.T) {
	s := newTestServer(t)

	op := s.submit(t, map[string]string{"os": "linux"})
	if op == "" {
		t.Fatal("expected operation id")
	}

	got := decodeData[OperationResponse](t, s.do(t, http.MethodGet, "/api/v1/operations/"+string(op), nil))
	if got.Stage != string(domain.StageQueued) {
		t.Errorf("stage = %s, want QUEUED", got.Stage)
	}
	if got.ActionDigest != "aa-1" || got.CommandDigest != "cc-2" || got.Timeout != "30s" {
		t.Errorf("unexpected operation: %+v", got)
	}
}

func TestSubmitAction_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  SubmitActionRequest
	}{
		{"missing command digest", SubmitActionRequest{InputRootDigest: "ii-3"}},
		{"bad digest size", SubmitActionRequest{CommandDigest: "cc-x", InputRootDigest: "ii-3"}},
		{"bad timeout", SubmitActionRequest{CommandDigest: "cc-2", InputRootDigest: "ii-3", Timeout: "soon"}},
		{"non-numeric minimum", SubmitActionRequest{CommandDigest: "cc-2", InputRootDigest: "ii-3", PlatformProperties: map[string]string{"cpu_count": "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, "/api/v1/operations", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListOperations_Filters(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1", MaxInflightTasks: 1})

	first := s.submit(t, nil)
	s.clock.Advance(time.Second)
	s.submit(t, nil)
	s.clock.Advance(time.Second)
	s.submit(t, nil)
	if err := s.sched.DoTryMatch(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?stage=queued", 2},
		{"?stage=executing", 1},
		{"?stage=executing&worker_id=w1", 1},
		{"?worker_id=w2", 0},
		{"?stage=completed", 0},
		{"?stage=whatever", 3},
		{"?limit=2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/operations"+tt.query, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			ops := decodeData[[]OperationResponse](t, rec)
			if len(ops) != tt.want {
				t.Errorf("got %d operations, want %d", len(ops), tt.want)
			}
		})
	}

	ops := decodeData[[]OperationResponse](t, s.do(t, http.MethodGet, "/api/v1/operations?stage=executing", nil))
	if ops[0].OperationID != first || ops[0].WorkerID != "w1" {
		t.Errorf("oldest operation should be executing on w1, got %+v", ops[0])
	}
}

func TestListOperations_InvalidLimit(t *testing.T) {
	s := newTestServer(t)

	for _, q := range []string{"?limit=0", "?limit=-1", "?limit=abc"} {
		rec := s.do(t, http.MethodGet, "/api/v1/operations"+q, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestGetOperation_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/operations/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// --- System Tests ---

func TestSchedulerStatus(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1", MaxInflightTasks: 1})
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w2", Paused: true})

	op := s.submit(t, nil)
	s.submit(t, nil)
	if err := s.sched.DoTryMatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.do(t, http.MethodPost, "/api/v1/workers/w1/operations/"+string(op), UpdateActionRequest{Kind: domain.UpdateFailed, ExitCode: 1})
	if err := s.sched.DoTryMatch(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/scheduler/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	got := decodeData[StatusResponse](t, rec)
	if got.Workers != 2 || got.WorkersPaused != 1 {
		t.Errorf("unexpected worker counts: %+v", got)
	}
	want := OperationCounts{Total: 2, Queued: 0, Executing: 1, Completed: 1}
	if got.Operations != want {
		t.Errorf("operations = %+v, want %+v", got.Operations, want)
	}
	if got.PropertyKinds["cpu_count"] != "minimum" {
		t.Errorf("property kinds = %v", got.PropertyKinds)
	}
}

func TestSchedulerMetrics(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w1"})
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w2", Paused: true})
	s.do(t, http.MethodPost, "/api/v1/workers", AddWorkerRequest{ID: "w3"})
	s.do(t, http.MethodPut, "/api/v1/workers/w3/drain", DrainRequest{Draining: true})

	s.submit(t, nil)
	s.submit(t, map[string]string{"cpu_count": "64"})
	if err := s.sched.DoTryMatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.clock.Advance(42 * time.Second)

	rec := s.do(t, http.MethodGet, "/api/v1/scheduler/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeData[MetricsResponse](t, rec)

	wantWorkers := WorkerCounts{Total: 3, Active: 1, Paused: 1, Draining: 1}
	if got.Workers != wantWorkers {
		t.Errorf("workers = %+v, want %+v", got.Workers, wantWorkers)
	}
	wantOps := OperationCounts{Total: 2, Queued: 1, Executing: 1}
	if got.Operations != wantOps {
		t.Errorf("operations = %+v, want %+v", got.Operations, wantOps)
	}
	if got.UptimeSeconds != 42 {
		t.Errorf("uptime_seconds = %d, want 42", got.UptimeSeconds)
	}

	// тот же расчёт, что и /scheduler/status
	status := decodeData[StatusResponse](t, s.do(t, http.MethodGet, "/api/v1/scheduler/status", nil))
	if MetricsFromStatus(status) != got {
		t.Errorf("metrics %+v differ from status rollup %+v", got, MetricsFromStatus(status))
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.clock.Advance(90 * time.Second)

	got := decodeData[HealthResponse](t, s.do(t, http.MethodGet, "/api/v1/system/health", nil))
	if got.Status != "ok" || got.UptimeSeconds != 90 {
		t.Errorf("unexpected health: %+v", got)
	}
}

// --- Middleware Tests ---

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/system/health", nil)
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil)
	req.Header.Set(HeaderRequestID, "req-7")
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "req-7" {
		t.Errorf("request id = %q, want req-7", got)
	}
}

func TestRequestID_ContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := RequestID(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.FromContext(r.Context()).Info("inside handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "request_id=req-9") {
		t.Errorf("expected request_id in log, got %q", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
