package domain

import "strings"

// ActionStage — стадия выполнения operation.
//
// Жизненный цикл:
//
//	CACHE_CHECK → QUEUED → EXECUTING → COMPLETED_SUCCESS
//	                  ↖________↙     ↘ COMPLETED_FAILURE
//	           (EXECUTING → QUEUED только при потере worker'а)
type ActionStage string

const (
	// StageUnknown — стадия не распознана (например, при парсинге).
	StageUnknown ActionStage = "UNKNOWN"

	// StageCacheCheck — operation проверяется в кэше результатов, владельца нет.
	StageCacheCheck ActionStage = "CACHE_CHECK"

	// StageQueued — operation ждёт назначения на worker, владельца нет.
	StageQueued ActionStage = "QUEUED"

	// StageExecuting — operation выполняется ровно одним worker'ом.
	StageExecuting ActionStage = "EXECUTING"

	// StageCompletedSuccess — operation успешно завершена.
	StageCompletedSuccess ActionStage = "COMPLETED_SUCCESS"

	// StageCompletedFailure — operation завершена с ошибкой.
	StageCompletedFailure ActionStage = "COMPLETED_FAILURE"
)

// IsFinished возвращает true, если стадия финальная.
// Из финальной стадии переходов нет.
func (s ActionStage) IsFinished() bool {
	switch s {
	case StageCompletedSuccess, StageCompletedFailure:
		return true
	default:
		return false
	}
}

// HasOwner возвращает true, если в этой стадии у operation есть worker-владелец.
func (s ActionStage) HasOwner() bool {
	return s == StageExecuting
}

// String возвращает строковое представление ActionStage.
func (s ActionStage) String() string {
	return string(s)
}

// ParseActionStage парсит строку в ActionStage.
// Регистр не важен; неизвестные значения дают StageUnknown.
func ParseActionStage(s string) ActionStage {
	switch strings.ToUpper(s) {
	case "CACHE_CHECK":
		return StageCacheCheck
	case "QUEUED":
		return StageQueued
	case "EXECUTING":
		return StageExecuting
	case "COMPLETED_SUCCESS":
		return StageCompletedSuccess
	case "COMPLETED_FAILURE":
		return StageCompletedFailure
	default:
		return StageUnknown
	}
}
