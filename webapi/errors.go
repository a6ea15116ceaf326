/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is the base error type for all backend API errors.
// It provides structured access to the HTTP status code, error message,
// and raw response body. All specific error sub-types embed this struct,
// so consumers can use errors.As(err, &apiErr) to access common fields
// regardless of the specific error type.
type APIError struct {
	// StatusCode is the HTTP status code from the response.
	StatusCode int

	// Status is the HTTP status line (e.g., "404 Not Found").
	Status string

	// Message is the error message from the API response body.
	Message string

	// RawBody is the raw response body bytes, preserved for debugging.
	RawBody []byte

	// Err is an optional wrapped error for errors.Unwrap support.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error: %d", e.StatusCode)
	if e.Message != "" {
		msg += " - " + e.Message
	}
	return msg
}

// Unwrap returns the wrapped error, if any.
func (e *APIError) Unwrap() error {
	return e.Err
}

// --- Specific error sub-types ---

// BadRequestError is returned for HTTP 400 Bad Request responses.
type BadRequestError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *BadRequestError) Unwrap() error { return e.APIError }

// AuthError is returned for HTTP 401 Unauthorized responses.
type AuthError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *AuthError) Unwrap() error { return e.APIError }

// ForbiddenError is returned for HTTP 403 Forbidden responses.
type ForbiddenError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *ForbiddenError) Unwrap() error { return e.APIError }

// NotFoundError is returned for HTTP 404 Not Found responses.
type NotFoundError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *NotFoundError) Unwrap() error { return e.APIError }

// ConflictError is returned for HTTP 409 Conflict responses.
// The callstats endpoint returns 409 for a duplicate call_id; the auth
// endpoint returns it for a duplicate username.
type ConflictError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *ConflictError) Unwrap() error { return e.APIError }

// ServerError is returned for HTTP 5xx responses.
type ServerError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *ServerError) Unwrap() error { return e.APIError }

// --- Factory ---

// apiErrorBody is used to parse the backend error response JSON.
type apiErrorBody struct {
	Message string `json:"message"`
}

// NewAPIError creates a structured error from an HTTP response and its body.
// It parses the JSON body for the message field and returns the appropriate
// error sub-type based on the HTTP status code.
func NewAPIError(resp *http.Response, body []byte) error {
	base := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RawBody:    body,
	}

	var parsed apiErrorBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err == nil {
			base.Message = parsed.Message
		}
		// If JSON parsing fails, leave Message empty — RawBody preserves the original
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return &BadRequestError{APIError: base}
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{APIError: base}
	case resp.StatusCode == http.StatusForbidden:
		return &ForbiddenError{APIError: base}
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{APIError: base}
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{APIError: base}
	case resp.StatusCode >= 500:
		return &ServerError{APIError: base}
	default:
		return base
	}
}

// --- Convenience functions ---

// IsBadRequest reports whether err is a bad request error (HTTP 400).
func IsBadRequest(err error) bool {
	var e *BadRequestError
	return errors.As(err, &e)
}

// IsAuthError reports whether err is an authentication error (HTTP 401).
func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// IsForbidden reports whether err is a forbidden error (HTTP 403).
func IsForbidden(err error) bool {
	var e *ForbiddenError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a not found error (HTTP 404).
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConflict reports whether err is a conflict error (HTTP 409).
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsServerError reports whether err is a server error (HTTP 5xx).
func IsServerError(err error) bool {
	var e *ServerError
	return errors.As(err, &e)
}
