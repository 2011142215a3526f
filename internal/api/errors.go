package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/plate-filler/backend/internal/allocator"
	"github.com/plate-filler/backend/internal/render"
	"github.com/plate-filler/backend/internal/session"
	"github.com/plate-filler/backend/internal/storage"
)

// ExposeErrorDetails includes the underlying error text in unexpected
// error responses.
var ExposeErrorDetails = true

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
func NewValidationError(field string, details string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
		Details: details,
	}
}

// NewCapacityError creates a 422 error for experiments that do not fit
func NewCapacityError(err *allocator.CapacityExceededError) *APIError {
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "CAPACITY_EXCEEDED",
		Message: err.Error(),
		Details: fmt.Sprintf("wellsNeeded=%d wellsAvailable=%d", err.WellsNeeded, err.WellsAvailable),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	message := fmt.Sprintf("%s not found", resource)
	if id != "" {
		message += ": " + id
	}
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil && ExposeErrorDetails {
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

// FromError maps domain errors to API errors. Unknown errors become
// INTERNAL_ERROR.
func FromError(err error) *APIError {
	var apiErr *APIError
	var capErr *allocator.CapacityExceededError
	var valErr *allocator.ValidationError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &capErr):
		return NewCapacityError(capErr)
	case errors.As(err, &valErr):
		return NewValidationError(valErr.Field, valErr.Message)
	case errors.Is(err, session.ErrRunNotFound):
		return NewNotFoundError("allocation", "")
	case errors.Is(err, storage.ErrFileNotFound):
		return NewNotFoundError("file", "")
	case errors.Is(err, render.ErrNoPlates):
		return NewNotFoundError("plate", "")
	case errors.Is(err, session.ErrNoArchive):
		return NewServiceUnavailableError(err.Error())
	}
	return NewInternalError("An unexpected error occurred", err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	} else {
		apiErr = FromError(err)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		log.Errorf("[API] failed to write error response: %v", err)
	}
}
