package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkerResponse — worker из API.
type WorkerResponse struct {
	ID                  string            `json:"id"`
	PlatformProperties  map[string]string `json:"platform_properties"`
	LastUpdateTimestamp uint64            `json:"last_update_timestamp"`
	ConnectedTimestamp  uint64            `json:"connected_timestamp"`
	IsPaused            bool              `json:"is_paused"`
	IsDraining          bool              `json:"is_draining"`
	CanAcceptWork       bool              `json:"can_accept_work"`
	RunningOperations   []string          `json:"running_operations"`
	ActionsCompleted    uint64            `json:"actions_completed"`
}

// OperationResponse — operation из API.
type OperationResponse struct {
	OperationID        string            `json:"operation_id"`
	Stage              string            `json:"stage"`
	WorkerID           string            `json:"worker_id,omitempty"`
	ActionDigest       string            `json:"action_digest"`
	CommandDigest      string            `json:"command_digest"`
	InputRootDigest    string            `json:"input_root_digest"`
	Priority           int32             `json:"priority"`
	Timeout            string            `json:"timeout,omitempty"`
	PlatformProperties map[string]string `json:"platform_properties,omitempty"`
	Requeues           int               `json:"requeues"`
	LastLostWorker     string            `json:"last_lost_worker,omitempty"`
	ExitCode           int               `json:"exit_code"`
	Error              string            `json:"error,omitempty"`
	InsertTimestamp    string            `json:"insert_timestamp"`
	StartedAt          string            `json:"started_at,omitempty"`
	FinishedAt         string            `json:"finished_at,omitempty"`
	UpdatedAt          string            `json:"updated_at"`
}

// StatusResponse — сводка планировщика из API.
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

// HealthResponse — health из API.
type HealthResponse struct {
	Status        string `json:"status"`
	StartedAt     string `json:"started_at"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// --- Request types ---

// SubmitActionRequest — постановка action в очередь.
type SubmitActionRequest struct {
	ActionDigest       string            `json:"action_digest,omitempty"`
	CommandDigest      string            `json:"command_digest"`
	InputRootDigest    string            `json:"input_root_digest"`
	Priority           int32             `json:"priority,omitempty"`
	Timeout            string            `json:"timeout,omitempty"`
	PlatformProperties map[string]string `json:"platform_properties,omitempty"`
}

// ListOperationsOpts — параметры фильтрации operations.
type ListOperationsOpts struct {
	Stage    string
	WorkerID string
	Limit    int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Foreman API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workers ---

// ListWorkers возвращает всех worker'ов в порядке регистрации.
func (c *Client) ListWorkers() ([]WorkerResponse, error) {
	var workers []WorkerResponse
	err := c.list("/api/v1/workers", nil, &workers)
	return workers, err
}

// GetWorker возвращает worker'а по ID.
func (c *Client) GetWorker(id string) (*WorkerResponse, error) {
	var worker WorkerResponse
	err := c.get("/api/v1/workers/"+url.PathEscape(id), &worker)
	return &worker, err
}

// SetDrain включает или выключает draining.
func (c *Client) SetDrain(id string, draining bool) (*WorkerResponse, error) {
	var worker WorkerResponse
	body := map[string]bool{"draining": draining}
	err := c.put("/api/v1/workers/"+url.PathEscape(id)+"/drain", body, &worker)
	return &worker, err
}

// RemoveWorker удаляет worker'а.
func (c *Client) RemoveWorker(id string) error {
	return c.delete("/api/v1/workers/" + url.PathEscape(id))
}

// --- Operations ---

// ListOperations возвращает operations с фильтрацией.
func (c *Client) ListOperations(opts ListOperationsOpts) ([]OperationResponse, error) {
	params := url.Values{}
	if opts.Stage != "" {
		params.Set("stage", opts.Stage)
	}
	if opts.WorkerID != "" {
		params.Set("worker_id", opts.WorkerID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var ops []OperationResponse
	err := c.list("/api/v1/operations", params, &ops)
	return ops, err
}

// GetOperation возвращает operation по ID.
func (c *Client) GetOperation(id string) (*OperationResponse, error) {
	var op OperationResponse
	err := c.get("/api/v1/operations/"+url.PathEscape(id), &op)
	return &op, err
}

// SubmitAction ставит action в очередь и возвращает OperationID.
func (c *Client) SubmitAction(req SubmitActionRequest) (string, error) {
	var resp struct {
		OperationID string `json:"operation_id"`
	}
	err := c.post("/api/v1/operations", req, &resp)
	return resp.OperationID, err
}

// --- Scheduler ---

// Status возвращает сводку планировщика.
func (c *Client) Status() (*StatusResponse, error) {
	var status StatusResponse
	err := c.get("/api/v1/scheduler/status", &status)
	return &status, err
}

// Health возвращает health сервиса.
func (c *Client) Health() (*HealthResponse, error) {
	var health HealthResponse
	err := c.get("/api/v1/system/health", &health)
	return &health, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
