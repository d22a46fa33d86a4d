package domain

import "errors"

// Виды ошибок планировщика.
// Компоненты оборачивают их через fmt.Errorf("...: %w", err),
// вызывающие проверяют через errors.Is.
var (
	// ErrNotFound — неизвестный WorkerID или OperationID.
	ErrNotFound = errors.New("not found")

	// ErrOwnershipViolation — update_action от worker'а, который не владеет operation.
	ErrOwnershipViolation = errors.New("operation is not owned by worker")

	// ErrAlreadyConnected — worker с таким ID уже зарегистрирован.
	ErrAlreadyConnected = errors.New("worker already connected")

	// ErrInvalidTransition — переход между стадиями невозможен.
	ErrInvalidTransition = errors.New("invalid stage transition")
)
