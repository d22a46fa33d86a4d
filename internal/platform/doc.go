// Package platform реализует Capability Matcher.
//
// Worker объявляет набор platform properties (имя → значение),
// action требует набор properties. PropertyManager решает,
// подходит ли worker для action.
//
// Виды properties:
//   - exact   — значение у worker'а должно совпадать точно (по умолчанию)
//   - minimum — числовое значение у worker'а должно быть ≥ требуемого;
//     при назначении требуемое количество резервируется (Reserve)
//     и возвращается при освобождении (Release)
//   - ignore  — не участвует в сопоставлении
//
// Matcher не хранит изменяемого состояния: одинаковые входы
// всегда дают одинаковый результат.
package platform
