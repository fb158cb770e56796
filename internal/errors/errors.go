package errors

import (
	stderrors "errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind classifies an AppError for boundary mapping (HTTP status, bot reply).
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindDelivery           Kind = "delivery"
	KindConflict           Kind = "conflict"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindRateLimit          Kind = "rate_limit"
)

// Sentinels usable with errors.Is against any *AppError of the same kind.
var (
	ErrNotFound           = &AppError{Kind: KindNotFound}
	ErrValidation         = &AppError{Kind: KindValidation}
	ErrStorageUnavailable = &AppError{Kind: KindStorageUnavailable}
	ErrDelivery           = &AppError{Kind: KindDelivery}
	ErrConflict           = &AppError{Kind: KindConflict}
	ErrUnauthorized       = &AppError{Kind: KindUnauthorized}
	ErrForbidden          = &AppError{Kind: KindForbidden}
	ErrRateLimit          = &AppError{Kind: KindRateLimit}
)

// AppError is the application error. RetryAfter is set in seconds for RateLimit errors.
type AppError struct {
	Code        string
	Kind        Kind
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	RetryAfter  int
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.Message == "" {
		return string(e.Kind)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is reports a match when target is an AppError of the same kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}

	return t.Kind != "" && e.Kind == t.Kind
}

// KindOf returns the kind of the first AppError in err's chain, or "" when none.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr != nil {
		return appErr.Kind
	}

	return ""
}

func NewNotFoundError(entity string, id any) *AppError {
	return &AppError{
		Code:        "E404",
		Kind:        KindNotFound,
		Message:     fmt.Sprintf("%s %v not found", entity, id),
		UserMessage: "Запрошенный объект не найден",
		Severity:    SeverityLow,
	}
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Kind:        KindValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Неверный формат данных. %s", msg),
		Severity:    SeverityLow,
	}
}

// NewDatabaseError marks the persistence layer as unavailable for the current operation.
func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Kind:        KindStorageUnavailable,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: "Временная проблема, попробуйте позже",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewDeliveryError wraps a failed send to a single recipient.
func NewDeliveryError(recipient int64, cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E300",
		Kind:        KindDelivery,
		Message:     fmt.Sprintf("delivery to %d failed: %s", recipient, underlyingMsg),
		UserMessage: "Сервис временно недоступен",
		Severity:    SeverityMedium,
		Retryable:   IsTransientDeliveryFailure(cause),
		cause:       cause,
	}
}

func NewConflictError(msg string) *AppError {
	return &AppError{
		Code:        "E409",
		Kind:        KindConflict,
		Message:     msg,
		UserMessage: "Операция уже выполнена",
		Severity:    SeverityLow,
	}
}

func NewUnauthorizedError(msg string) *AppError {
	return &AppError{
		Code:        "E401",
		Kind:        KindUnauthorized,
		Message:     msg,
		UserMessage: "Требуется авторизация",
		Severity:    SeverityLow,
	}
}

func NewForbiddenError(msg string) *AppError {
	return &AppError{
		Code:        "E403",
		Kind:        KindForbidden,
		Message:     msg,
		UserMessage: "Доступ запрещён",
		Severity:    SeverityLow,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        "E500",
		Kind:        KindRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Слишком много запросов. Попробуйте через %d секунд", retryAfter),
		Severity:    SeverityLow,
		RetryAfter:  retryAfter,
	}
}
