package utils

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorKind is the stable machine-readable error classification surfaced to
// API clients. Row-level problems never become AppErrors; they are captured
// on the candidate's error message instead.
type ErrorKind string

const (
	ErrKindMalformedFile     ErrorKind = "MALFORMED_FILE"
	ErrKindNotFound          ErrorKind = "NOT_FOUND"
	ErrKindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	ErrKindRender            ErrorKind = "RENDER_FAILED"
	ErrKindPersistence       ErrorKind = "PERSISTENCE_FAILED"
	ErrKindExportFailed      ErrorKind = "EXPORT_FAILED"
	ErrKindValidation        ErrorKind = "VALIDATION_FAILED"
	ErrKindInternal          ErrorKind = "INTERNAL"
)

type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// KindOf classifies any error for the API layer.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrorRecordNotFound) {
		return ErrKindNotFound
	}
	return ErrKindInternal
}

// MessageOf returns the human-readable message without the kind prefix.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
		}
		return appErr.Message
	}
	return err.Error()
}

func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case ErrKindMalformedFile, ErrKindValidation:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
