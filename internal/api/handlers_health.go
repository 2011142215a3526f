package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	runs    RunManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, runs RunManager) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		runs:    runs,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.runs != nil {
		resp["runs"] = len(h.runs.ListRuns(0))
	}
	return c.JSON(http.StatusOK, resp)
}
