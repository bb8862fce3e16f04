// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/venue-console/opmap/internal/backend"
	"github.com/venue-console/opmap/internal/session"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// NewBadGatewayError creates a 502 error for failures of the event backend
func NewBadGatewayError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "BACKEND_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewLoadingError creates a 409 error for requests that need a loaded map
func NewLoadingError() *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "MAP_LOADING",
		Message: "map is loading",
	}
}

// FromSessionError maps session and backend errors onto the API taxonomy.
func FromSessionError(err error, id string) *APIError {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return NewNotFoundError("session", id)
	case errors.Is(err, session.ErrTooManySessions):
		return NewServiceUnavailableError(err.Error())
	case errors.Is(err, session.ErrLoading):
		return NewLoadingError()
	case errors.Is(err, session.ErrLoadFailed):
		return NewBadGatewayError("map load failed", err)
	case errors.Is(err, session.ErrNoStatistics):
		return NewLoadingError()
	case errors.Is(err, session.ErrNoSelection):
		return NewNotFoundError("selection", id)
	case errors.Is(err, session.ErrResultNotFound):
		return NewNotFoundError("search result", id)
	case errors.Is(err, session.ErrNotSelectable), errors.Is(err, session.ErrNotInView):
		return &APIError{Status: http.StatusUnprocessableEntity, Code: "NOT_SELECTABLE", Message: err.Error()}
	case errors.Is(err, session.ErrInvalidPointer), errors.Is(err, session.ErrInvalidZoom):
		return NewBadRequestError("invalid input event", err)
	case errors.Is(err, backend.ErrNotFound):
		return NewNotFoundError("event", id)
	default:
		return NewInternalError("unexpected error", err)
	}
}

// ShowErrorDetails includes the cause of unexpected errors in responses.
var ShowErrorDetails = false

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
		}
		if ShowErrorDetails {
			apiErr.Details = err.Error()
		}
	}

	// Send JSON response
	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}
