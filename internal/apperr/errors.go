package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType int

const (
	ErrParse ErrorType = iota
	ErrValidation
	ErrFileRead
	ErrFileWrite
	ErrNetwork
	ErrRemote
	ErrConfig
	ErrUnknown
)

// Error carries a classification alongside the underlying cause so that
// callers can decide how a failure is surfaced (HTTP status, retry, ignore).
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func New(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func Wrap(err error, errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   err,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrParse:
		return "Parse"
	case ErrValidation:
		return "Validation"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrNetwork:
		return "Network"
	case ErrRemote:
		return "Remote"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

func IsType(err error, errorType ErrorType) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// HTTPStatus maps an error to the status code the save endpoint answers with.
// Only request-shape problems are the client's fault; everything else is 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case ErrParse, ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
