package http

import (
	"fmt"
	"net/http"
)

// AppError is an error the API renders verbatim: Code and Message go to the
// client, Status selects the HTTP status and Err stays server side.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// WithError attaches the underlying cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// statusCodes names the error code sent with each status the API uses.
var statusCodes = map[int]string{
	http.StatusBadRequest:          "ERR_BAD_REQUEST",
	http.StatusNotFound:            "ERR_NOT_FOUND",
	http.StatusConflict:            "ERR_CONFLICT",
	http.StatusUnprocessableEntity: "ERR_INSUFFICIENT_DATA",
	http.StatusTooManyRequests:     "ERR_RATE_LIMITED",
	http.StatusServiceUnavailable:  "ERR_UNAVAILABLE",
	http.StatusInternalServerError: "ERR_INTERNAL",
}

// ErrorForStatus builds an AppError for status with its standard code.
func ErrorForStatus(status int, message string) *AppError {
	code, ok := statusCodes[status]
	if !ok {
		code = "ERR_UNKNOWN"
	}
	return NewAppError(code, "", message, status)
}

func BadRequestError(message string) *AppError {
	return ErrorForStatus(http.StatusBadRequest, message)
}

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

func NotFoundError(message string) *AppError {
	return ErrorForStatus(http.StatusNotFound, message)
}

func ConflictError(message string) *AppError {
	return ErrorForStatus(http.StatusConflict, message)
}

func UnprocessableError(message string) *AppError {
	return ErrorForStatus(http.StatusUnprocessableEntity, message)
}

func TooManyRequestsError(message string) *AppError {
	return ErrorForStatus(http.StatusTooManyRequests, message)
}

func ServiceUnavailableError(message string) *AppError {
	return ErrorForStatus(http.StatusServiceUnavailable, message)
}

func InternalError(message string) *AppError {
	return ErrorForStatus(http.StatusInternalServerError, message)
}
