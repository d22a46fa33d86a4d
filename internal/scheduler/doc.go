// Package scheduler реализует Worker Scheduler — ядро распределения operations
// по удалённым worker'ам.
//
// Scheduler владеет пулом worker'ов, назначает QUEUED operations на подходящие
// worker'ы, выселяет worker'ов без keep-alive и возвращает их operations в очередь.
//
// Структура:
//   - scheduler.go — интерфейс WorkerScheduler, Config, New, Start/Stop, AddAction
//   - registry.go  — Worker Registry: регистрация, keep-alive, drain, update_action, snapshot'ы
//   - dispatch.go  — Dispatch Engine: DoTryMatch (first-fit по приоритету)
//   - liveness.go  — выселение worker'ов и requeue их operations
//   - events.go    — события о переходах состояний (EventSink)
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Store:         store,          // opstate.Manager
//	    Properties:    props,          // *platform.PropertyManager
//	    WorkerTimeout: 5 * time.Second,
//	    Events:        publisher,      // опционально
//	    Logger:        logger,
//	})
//
//	if err := sched.Start(ctx); err != nil { ... }
//	defer sched.Stop()
//
// Конкурентность:
//
// Все мутирующие операции сериализуются одним mutex'ом, который покрывает
// и реестр, и изменения в Operation State Manager. Назначение operation
// поэтому атомарно по отношению к другим мутациям. GetWorkerIds и
// GetAllWorkersInfo читают неизменяемый snapshot и не блокируют писателей.
//
// Время keep-alive передаётся вызывающим (WorkerKeepAliveReceived,
// RemoveTimedoutWorkers); внутри используется только внедрённый clock.Clock.
package scheduler
