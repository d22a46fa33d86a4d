package repo

import (
	"errors"

	"github.com/shaiso/Foreman/internal/domain"
)

// Общие ошибки репозиториев.
//
// ErrNotFound и ErrInvalidState совпадают с доменными ошибками,
// чтобы вызывающий код мог проверять их через errors.Is независимо от backend'а.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = domain.ErrNotFound

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = domain.ErrInvalidTransition
)
