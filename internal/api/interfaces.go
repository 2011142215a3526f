package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/plate-filler/backend/internal/models"
	"github.com/plate-filler/backend/internal/session"
)

// AllocationHandler handles allocation runs and their layouts
type AllocationHandler interface {
	HandleCreateAllocation(c echo.Context) error
	HandleAllocateFile(c echo.Context) error
	HandleListAllocations(c echo.Context) error
	HandleGetAllocation(c echo.Context) error
	HandleDeleteAllocation(c echo.Context) error
	HandleGetLayout(c echo.Context) error
	HandleGetLayoutMsgpack(c echo.Context) error
	HandlePlateImage(c echo.Context) error
	HandleQueryWells(c echo.Context) error
	HandleFormats(c echo.Context) error
}

// FileHandler handles uploaded experiment files
type FileHandler interface {
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// RunManager defines the interface for run management
// This allows mocking in tests
type RunManager interface {
	Allocate(ctx context.Context, req session.Request) (*models.AllocationRun, error)
	GetRun(id string) (*models.AllocationRun, bool)
	GetLayout(id string) (models.Layout, bool)
	TouchRun(id string) bool
	ListRuns(limit int) []*models.AllocationRun
	DeleteRun(ctx context.Context, id string) error
	QueryWells(ctx context.Context, id string, filter models.WellFilter) ([]models.ArchivedWell, error)
}

var _ RunManager = (*session.Manager)(nil)
