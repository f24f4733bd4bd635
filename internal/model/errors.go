package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried in the JSON error body.
const (
	CodeMissingRequiredConfig = "MISSING_REQUIRED_CONFIG"
	CodeInvalidURL            = "INVALID_URL"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeCrossOriginBlocked    = "CROSS_ORIGIN_BLOCKED"
	CodeTemplateNotFound      = "HTML_TEMPLATE_NOT_FOUND"
	CodeStoreValuesMissing    = "STORE_VALUES_MISSING"
	CodeInternal              = "INTERNAL_SERVER_ERROR"
	CodeRateLimited           = "RATE_LIMITED"
	CodeProxyError            = "PROXY_ERROR"
)

// Error is a tagged failure that maps onto an HTTP status and a JSON body.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error without an underlying cause.
func NewError(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// WrapError creates an Error around cause.
func WrapError(code string, status int, message string, cause error) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: cause}
}

// ErrCrossOriginBlocked is returned when the forward target falls outside the allowed origins.
var ErrCrossOriginBlocked = NewError(CodeCrossOriginBlocked, http.StatusForbidden, "Cross-origin blocked")

// AsError converts any error into an *Error, defaulting to a 500.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return WrapError(CodeInternal, http.StatusInternalServerError, "Internal server error", err)
}
