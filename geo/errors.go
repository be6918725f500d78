// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package geo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// GeocodeError describes why an address could not be resolved.
type GeocodeError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies geocoding failures.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit means the provider throttled us.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded means the key ran out of quota or was denied.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout means the request did not finish in time.
	ErrorTypeTimeout
	// ErrorTypeNotFound means the address is unresolvable.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest means the provider rejected the request.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError means the provider could not be reached.
	ErrorTypeNetworkError
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeQuotaExceeded:
		return "quota_exceeded"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	case ErrorTypeNetworkError:
		return "network"
	default:
		return "unknown"
	}
}

func (e *GeocodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodeError) Unwrap() error {
	return e.Err
}

func hasType(err error, t ErrorType) (bool, bool) {
	var geoErr *GeocodeError
	if errors.As(err, &geoErr) {
		return geoErr.Type == t, true
	}

	return false, false
}

// IsNotFoundError reports whether err means the address is unresolvable.
func IsNotFoundError(err error) bool {
	is, _ := hasType(err, ErrorTypeNotFound)

	return is
}

// IsRateLimitError reports whether err is a throttling error.
func IsRateLimitError(err error) bool {
	if is, typed := hasType(err, ErrorTypeRateLimit); typed {
		return is
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError reports whether err is a quota or authorization error.
func IsQuotaExceededError(err error) bool {
	if is, typed := hasType(err, ErrorTypeQuotaExceeded); typed {
		return is
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	if is, typed := hasType(err, ErrorTypeTimeout); typed {
		return is
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// ClassifyHTTPError maps an HTTP status code to a GeocodeError.
func ClassifyHTTPError(statusCode int) *GeocodeError {
	switch statusCode {
	case http.StatusTooManyRequests:
		return &GeocodeError{Type: ErrorTypeRateLimit, Message: "rate limit reached"}
	case http.StatusForbidden:
		return &GeocodeError{Type: ErrorTypeQuotaExceeded, Message: "quota exceeded or access denied"}
	case http.StatusBadRequest:
		return &GeocodeError{Type: ErrorTypeInvalidRequest, Message: "invalid request"}
	case http.StatusNotFound:
		return &GeocodeError{Type: ErrorTypeNotFound, Message: "address not found"}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &GeocodeError{
			Type:    ErrorTypeNetworkError,
			Message: fmt.Sprintf("service unavailable (status %d)", statusCode),
		}
	default:
		return &GeocodeError{Type: ErrorTypeUnknown, Message: fmt.Sprintf("HTTP error %d", statusCode)}
	}
}

// ClassifyAPIStatus maps the "status" field of a Google Maps response to a GeocodeError.
func ClassifyAPIStatus(status, message string) *GeocodeError {
	if message == "" {
		message = "google maps status " + status
	}

	switch status {
	case "ZERO_RESULTS":
		return &GeocodeError{Type: ErrorTypeNotFound, Message: message}
	case "OVER_QUERY_LIMIT":
		return &GeocodeError{Type: ErrorTypeRateLimit, Message: message}
	case "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		return &GeocodeError{Type: ErrorTypeQuotaExceeded, Message: message}
	case "INVALID_REQUEST":
		return &GeocodeError{Type: ErrorTypeInvalidRequest, Message: message}
	default:
		return &GeocodeError{Type: ErrorTypeUnknown, Message: message}
	}
}
