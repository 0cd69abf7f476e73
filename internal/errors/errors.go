// Package errors defines the error kinds surfaced by the repository core.
package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypePathNotFound   ErrorType = "PATH_NOT_FOUND"
	ErrorTypeReadFailure    ErrorType = "READ_FAILURE"
	ErrorTypeCorruptObject  ErrorType = "CORRUPT_OBJECT"
	ErrorTypeCorruptHistory ErrorType = "CORRUPT_HISTORY"
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeNotRepository  ErrorType = "NOT_A_REPOSITORY"
)

// Exit codes used by the command line for each error type.
const (
	CodeGeneric   = 1
	CodeNotFound  = 2
	CodeIntegrity = 3
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
	Code    int       `json:"code"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same type, so callers can compare against
// the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// Fatal reports whether the error signals a repository integrity problem.
func (e *Error) Fatal() bool {
	return e.Type == ErrorTypeCorruptObject || e.Type == ErrorTypeCorruptHistory
}

var (
	ErrPathNotFound   = &Error{Type: ErrorTypePathNotFound}
	ErrReadFailure    = &Error{Type: ErrorTypeReadFailure}
	ErrCorruptObject  = &Error{Type: ErrorTypeCorruptObject}
	ErrCorruptHistory = &Error{Type: ErrorTypeCorruptHistory}
	ErrValidation     = &Error{Type: ErrorTypeValidation}
	ErrNotRepository  = &Error{Type: ErrorTypeNotRepository}
)

func PathNotFound(path string) *Error {
	return &Error{
		Type:    ErrorTypePathNotFound,
		Message: "path not found",
		Path:    path,
		Code:    CodeNotFound,
	}
}

func ReadFailure(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeReadFailure,
		Message: "reading file",
		Path:    path,
		Code:    CodeGeneric,
		Err:     err,
	}
}

func CorruptObject(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeCorruptObject,
		Message: message,
		Code:    CodeIntegrity,
		Err:     err,
	}
}

func CorruptHistory(message string) *Error {
	return &Error{
		Type:    ErrorTypeCorruptHistory,
		Message: message,
		Code:    CodeIntegrity,
	}
}

func Validation(message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    CodeGeneric,
	}
}

func NotRepository(path string) *Error {
	return &Error{
		Type:    ErrorTypeNotRepository,
		Message: "not a pgit repository (or any parent directory)",
		Path:    path,
		Code:    CodeGeneric,
	}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return CodeGeneric
}

// Is and As forward to the standard library so callers importing this
// package under the name errors keep the usual helpers.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
