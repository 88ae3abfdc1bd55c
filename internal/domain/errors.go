package domain

import (
	"errors"
	"fmt"
)

// Общие доменные ошибки
var (
	ErrNotFound    = notFoundError("order not found")
	ErrValidation  = validationError("invalid order")
	ErrPersistence = persistenceError("persistence failure")
)

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

type validationError string

func (e validationError) Error() string { return string(e) }

type persistenceError string

func (e persistenceError) Error() string { return string(e) }

// ValidationError — структурно некорректный заказ. Повторная доставка его не исправит.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid order: %s: %v", e.Reason, e.Err)
	}
	return "invalid order: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PersistenceError — хранилище недоступно или транзакция не зафиксирована.
// Операцию можно повторить.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// CacheWarmError — не удалось загрузить один заказ при прогреве кэша.
type CacheWarmError struct {
	OrderUID string
	Err      error
}

func (e *CacheWarmError) Error() string {
	return fmt.Sprintf("warm cache: order %s: %v", e.OrderUID, e.Err)
}

func (e *CacheWarmError) Unwrap() error { return e.Err }

// IsRetryable сообщает, имеет ли смысл повторная доставка сообщения.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}
