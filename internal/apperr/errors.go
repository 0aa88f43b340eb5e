package apperr

import (
	"errors"
	"fmt"
)

// AppError is a coded application error. Two AppErrors match under errors.Is
// when their codes are equal, so sentinels below work through any wrapping.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

const (
	CodeMappingLoad       = "MAPPING_LOAD"
	CodeMissingIdentifier = "MISSING_IDENTIFIER"
	CodeMissingColumn     = "MISSING_COLUMN"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeExternalService   = "EXTERNAL_SERVICE_ERROR"
	CodeInternalError     = "INTERNAL_ERROR"
)

var (
	ErrMappingLoad       = &AppError{Code: CodeMappingLoad, Message: "mapping table could not be loaded"}
	ErrMissingIdentifier = &AppError{Code: CodeMissingIdentifier, Message: "respondent identifier column not found"}
	ErrMissingColumn     = &AppError{Code: CodeMissingColumn, Message: "column not found"}
	ErrNotFound          = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrInvalidInput      = &AppError{Code: CodeInvalidInput, Message: "invalid input"}
)

func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Newf(code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with additional context, keeping the code of an AppError cause.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Cause: err}
	}
	return &AppError{Code: CodeInternalError, Message: message, Cause: err}
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: err.Error(), Cause: err}
}

func MissingColumn(column string) error {
	return Newf(CodeMissingColumn, "column not found: %s", column)
}

func MissingIdentifier(column string) error {
	return Newf(CodeMissingIdentifier, "respondent identifier column not found: %s", column)
}

// GetCode returns the code of the outermost AppError in the chain, or "UNKNOWN".
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}
