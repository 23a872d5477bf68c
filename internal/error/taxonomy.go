package derror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable error code exposed on the wire.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeAuthentication     Code = "AUTHENTICATION_ERROR"
	CodeForbidden          Code = "FORBIDDEN_ERROR"
	CodeNotFound           Code = "NOT_FOUND_ERROR"
	CodeCannotCancel       Code = "CANNOT_CANCEL_ERROR"
	CodeCannotRetry        Code = "CANNOT_RETRY_ERROR"
	CodeRetryLimitExceeded Code = "RETRY_LIMIT_EXCEEDED_ERROR"
	CodeDatabase           Code = "DATABASE_ERROR"
	CodeWorkflow           Code = "WORKFLOW_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// trait fixes the wire contract per code: HTTP status and whether a client
// may expect the same request to eventually succeed if re-issued.
type trait struct {
	status    int
	retryable bool
	message   string
}

var traits = map[Code]trait{
	CodeValidation:         {http.StatusBadRequest, false, "invalid request"},
	CodeAuthentication:     {http.StatusUnauthorized, false, "authentication required"},
	CodeForbidden:          {http.StatusForbidden, false, "access denied"},
	CodeNotFound:           {http.StatusNotFound, false, "process not found"},
	CodeCannotCancel:       {http.StatusBadRequest, false, "process cannot be cancelled"},
	CodeCannotRetry:        {http.StatusBadRequest, false, "process cannot be retried"},
	CodeRetryLimitExceeded: {http.StatusBadRequest, false, "retry limit exceeded"},
	CodeDatabase:           {http.StatusInternalServerError, true, "database operation failed"},
	CodeWorkflow:           {http.StatusServiceUnavailable, true, "workflow engine unavailable"},
	CodeInternal:           {http.StatusInternalServerError, true, "internal error"},
}

// Error carries the uniform wire contract of every failure: a stable code,
// a human message, a retryable hint and the HTTP status to respond with.
// The wrapped cause is preserved for logs and never serialized to clients.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Status    int
	Details   map[string]any
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetails attaches structured detail fields included in the response body.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// New builds an Error for the given code. An empty message falls back to the
// code's default. cause may be nil.
func New(code Code, message string, cause error) *Error {
	tr, ok := traits[code]
	if !ok {
		tr = traits[CodeInternal]
		code = CodeInternal
	}
	if message == "" {
		message = tr.message
	}
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: tr.retryable,
		Status:    tr.status,
		cause:     cause,
	}
}

func Validation(message string) *Error          { return New(CodeValidation, message, nil) }
func Authentication(message string) *Error      { return New(CodeAuthentication, message, nil) }
func Forbidden(message string) *Error           { return New(CodeForbidden, message, nil) }
func NotFound(message string) *Error            { return New(CodeNotFound, message, nil) }
func CannotCancel(message string) *Error        { return New(CodeCannotCancel, message, nil) }
func CannotRetry(message string) *Error         { return New(CodeCannotRetry, message, nil) }
func RetryLimitExceeded(message string) *Error  { return New(CodeRetryLimitExceeded, message, nil) }
func Database(message string, cause error) *Error { return New(CodeDatabase, message, cause) }
func Workflow(message string, cause error) *Error { return New(CodeWorkflow, message, cause) }
func Internal(cause error) *Error               { return New(CodeInternal, "", cause) }

// From funnels any error into the taxonomy. Taxonomy errors pass through
// unchanged; everything else becomes an INTERNAL_ERROR with the cause kept
// for logging.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
