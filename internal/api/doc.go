// Package api содержит HTTP API планировщика.
//
// Структура:
//   - handler.go           — Handler с DI (планировщик, store, метрики, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - worker_handler.go    — обработчики для /workers
//   - operation_handler.go — обработчики для /operations
//   - system_handler.go    — /scheduler/status, /scheduler/metrics, /system/health
//
// Мониторинговые маршруты только читают snapshot реестра и Operation State Manager.
// Маршруты worker'ов и клиентов — тонкие адаптеры над WorkerScheduler и ActionScheduler,
// собственного состояния у них нет.
package api
