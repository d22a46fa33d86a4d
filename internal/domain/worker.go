package domain

// Worker — регистрационные данные worker'а, передаваемые в add_worker.
//
// Планировщик копирует эти данные в собственную запись;
// изменения переданной структуры после регистрации ни на что не влияют.
type Worker struct {
	// ID — идентификатор worker'а.
	ID WorkerID `json:"id"`

	// PlatformProperties — capabilities worker'а (имя → значение).
	PlatformProperties map[string]string `json:"platform_properties,omitempty"`

	// MaxInflightTasks — сколько operations worker выполняет одновременно.
	// 0 — без ограничений.
	MaxInflightTasks int `json:"max_inflight_tasks"`

	// Paused — worker подключается на паузе и не получает работу
	// до первого keep-alive.
	Paused bool `json:"paused,omitempty"`

	// ConnectedTimestamp — время подключения. Если 0, берётся из clock планировщика.
	ConnectedTimestamp WorkerTimestamp `json:"connected_timestamp,omitempty"`

	// LastUpdateTimestamp — время последнего keep-alive.
	// Если 0, равно ConnectedTimestamp.
	LastUpdateTimestamp WorkerTimestamp `json:"last_update_timestamp,omitempty"`
}

// WorkerInfo — снимок состояния worker'а для мониторинга.
type WorkerInfo struct {
	PlatformProperties  map[string]string `json:"platform_properties"`
	LastUpdateTimestamp WorkerTimestamp   `json:"last_update_timestamp"`
	IsPaused            bool              `json:"is_paused"`
	IsDraining          bool              `json:"is_draining"`
	CanAcceptWork       bool              `json:"can_accept_work"`
	RunningOperations   []OperationID     `json:"running_operations"`
	ConnectedTimestamp  WorkerTimestamp   `json:"connected_timestamp"`
	ActionsCompleted    uint64            `json:"actions_completed"`
}

// WorkerEntry — пара (WorkerID, WorkerInfo) из get_all_workers_info.
type WorkerEntry struct {
	ID   WorkerID
	Info WorkerInfo
}
