// Package cli реализует инструмент командной строки Foreman.
//
// # Обзор
//
// CLI — клиентская утилита оператора для HTTP API планировщика.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Foreman API. Инкапсулирует запросы,
// парсинг ответов (data, list, error) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	workers, err := client.ListWorkers()
//
// ## Output
//
// Форматирование вывода: таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr,
// поэтому работает pipe: foreman worker list --json | jq .
//
// ## Commands
//
// Cobra-команды по ресурсам:
//   - worker: list, show, drain, undrain, remove
//   - op: list, show, submit
//   - status
//
// Каждая группа создаётся фабричной функцией (NewWorkerCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
