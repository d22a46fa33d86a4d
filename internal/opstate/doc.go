// Package opstate описывает контракт Operation State Manager
// и содержит его in-memory реализацию.
//
// Operation State Manager — авторитетное хранилище operations:
//   - ActionState (стадия, владелец, временные метки) — изменяемая часть
//   - ActionInfo (digests, приоритет, таймаут, требуемые capabilities) — неизменяемая часть
//
// FilterOperations возвращает ленивый конечный Stream. Каждый элемент —
// ActionStateResult с двумя независимо загружаемыми представлениями
// (AsState и AsActionInfo). Оба описывают одну и ту же operation,
// но динамические поля AsState могут быть свежее, чем на момент фильтрации.
//
// Реализации:
//   - MemoryStore (этот пакет)
//   - repo.OperationRepo (PostgreSQL)
package opstate
