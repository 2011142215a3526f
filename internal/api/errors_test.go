package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/plate-filler/backend/internal/allocator"
	"github.com/plate-filler/backend/internal/render"
	"github.com/plate-filler/backend/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"capacity", &allocator.CapacityExceededError{WellsNeeded: 10, WellsAvailable: 4}, http.StatusUnprocessableEntity, "CAPACITY_EXCEEDED"},
		{"validation", &allocator.ValidationError{Field: "replicas", Message: "must be positive"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"wrapped run not found", fmt.Errorf("lookup: %w", session.ErrRunNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"no plates", render.ErrNoPlates, http.StatusNotFound, "NOT_FOUND"},
		{"no archive", session.ErrNoArchive, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"api error passes through", NewBadRequestError("bad", nil), http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromError(tt.err)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestValidationErrorDetails(t *testing.T) {
	apiErr := FromError(&allocator.ValidationError{Field: "plateSize", Message: "plate size 48, expected 96 or 384"})
	assert.Equal(t, "validation failed for field: plateSize", apiErr.Message)
	assert.Equal(t, "plate size 48, expected 96 or 384", apiErr.Details)
}
