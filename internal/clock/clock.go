// Package clock предоставляет внедряемый источник времени.
//
// Планировщик и Liveness Monitor не читают wall-clock напрямую:
// в production используется Real, в тестах — Manual.
package clock

import (
	"sync"
	"time"
)

// Clock — источник текущего времени.
type Clock interface {
	Now() time.Time
}

// Real — системные часы.
type Real struct{}

// Now возвращает time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Manual — часы, которые двигаются только вручную.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual создаёт Manual, показывающие t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now возвращает текущее значение.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set устанавливает время.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance сдвигает время на d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
