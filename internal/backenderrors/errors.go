// Package backenderrors defines the error taxonomy shared by the
// authorization engine and the accounting pipeline. Each kind carries a
// stable code and an HTTP-adjacent status so callers can distinguish
// "not authorized" from "could not determine".
package backenderrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotValidData         Code = "not_valid_data"
	CodeBadRequest           Code = "bad_request"
	CodeProviderKeyInvalid   Code = "provider_key_invalid"
	CodeServiceIDInvalid     Code = "service_id_invalid"
	CodeApplicationNotFound  Code = "application_not_found"
	CodeApplicationNotActive Code = "application_not_active"
	CodeLimitsExceeded       Code = "limits_exceeded"
	CodeMetricInvalid        Code = "metric_invalid"
	CodeUsageInvalid         Code = "usage_invalid"
	CodeStorageUnavailable   Code = "storage_unavailable"
)

// Error is a classified backend failure. Logical kinds are terminal and
// surface in verdicts or per-transaction error records; the storage kind
// is infrastructural and subject to retry.
type Error struct {
	Code    Code
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match two taxonomy errors by code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// CodeOf extracts the taxonomy code, or CodeBadRequest for unclassified
// failures crossing the request boundary.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeBadRequest
}

// StatusOf extracts the HTTP-adjacent status of a failure.
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Status
	}
	return http.StatusBadRequest
}

// IsStorageUnavailable reports whether the failure is infrastructural,
// as opposed to a logical resolution failure.
func IsStorageUnavailable(err error) bool {
	return CodeOf(err) == CodeStorageUnavailable
}

func NotValidData() *Error {
	return &Error{
		Code:    CodeNotValidData,
		Status:  http.StatusBadRequest,
		Message: "all data must be valid UTF8",
	}
}

func BadRequest() *Error {
	return &Error{
		Code:    CodeBadRequest,
		Status:  http.StatusBadRequest,
		Message: "request contains syntax errors, should not be repeated without modification",
	}
}

func ProviderKeyInvalid(key string) *Error {
	return &Error{
		Code:    CodeProviderKeyInvalid,
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("provider key %q is invalid", key),
	}
}

func ServiceIDInvalid(id string) *Error {
	return &Error{
		Code:    CodeServiceIDInvalid,
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("service id %q is invalid", id),
	}
}

func ApplicationNotFound(idOrKey string) *Error {
	return &Error{
		Code:    CodeApplicationNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("application with id=%q was not found", idOrKey),
	}
}

func ApplicationNotActive() *Error {
	return &Error{
		Code:    CodeApplicationNotActive,
		Status:  http.StatusConflict,
		Message: "application is not active",
	}
}

func LimitsExceeded() *Error {
	return &Error{
		Code:    CodeLimitsExceeded,
		Status:  http.StatusConflict,
		Message: "usage limits are exceeded",
	}
}

func MetricInvalid(name string) *Error {
	return &Error{
		Code:    CodeMetricInvalid,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("metric %q is invalid", name),
	}
}

func UsageInvalid(detail string) *Error {
	return &Error{
		Code:    CodeUsageInvalid,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("usage is invalid: %s", detail),
	}
}

func StorageUnavailable(cause error) *Error {
	return &Error{
		Code:    CodeStorageUnavailable,
		Status:  http.StatusServiceUnavailable,
		Message: "storage is unavailable",
		cause:   cause,
	}
}
