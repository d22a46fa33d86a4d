// Package telemetry — логирование и метрики планировщика.
//
// logging.go настраивает slog по LOG_LEVEL и LOG_FORMAT и добавляет
// worker_id/operation_id к записям; обработчики MQ кладут логгер
// с message_id в context.
//
// metrics.go описывает SchedulerMetrics: число подключённых worker'ов,
// удаления по причинам (removed, timeout), назначения, завершения,
// requeue и ожидающие повтора requeue, длительность прохода dispatch.
// cmd/foreman-scheduler отдаёт их на /metrics; JSON-сводка
// /api/v1/scheduler/metrics считается отдельно, по реестру и store.
package telemetry
