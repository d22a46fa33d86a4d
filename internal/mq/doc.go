// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - events.go     — EventSink планировщика поверх Publisher
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - worker.keepalive    — keep-alive от worker'а (consumer: intake)
//   - action.update       — обновление operation от worker'а (consumer: intake)
//   - worker.*, operation.* — события планировщика (topic exchange foreman.events)
//
// Exchanges:
//   - foreman.workers — сообщения от worker'ов
//   - foreman.events  — события переходов состояний
//   - foreman.dlq     — dead letter queue
package mq
