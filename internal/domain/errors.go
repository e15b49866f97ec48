package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation означает некорректные или неполные входные данные.
	ErrValidation = errors.New("validation error")
	// ErrNotFound означает, что запись с указанным идентификатором не найдена.
	ErrNotFound = errors.New("not found")
	// ErrConflict означает, что операция недопустима в текущем состоянии записи.
	ErrConflict = errors.New("conflict")
	// ErrTransport означает, что сессия недоступна или отправка через неё не удалась.
	ErrTransport = errors.New("transport error")
)

// Error описывает ошибку операции с понятным оператору сообщением.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

// Unwrap позволяет проверять вид ошибки через errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

// Validationf создаёт ошибку валидации.
func Validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf создаёт ошибку отсутствующей записи.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf создаёт ошибку недопустимого перехода состояния.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Transportf создаёт ошибку транспорта.
func Transportf(format string, args ...any) error {
	return &Error{Kind: ErrTransport, Message: fmt.Sprintf(format, args...)}
}
