// Package api serves plate allocations over HTTP: runs, layouts, plate
// images, archived wells and the uploaded experiment files behind them.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/plate-filler/backend/internal/parser"
	"github.com/plate-filler/backend/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Runs     RunManager
	Parsers  *parser.Registry
	Renders  *storage.RenderCache
	Defaults Defaults
	Version  string

	// Gatherer exposes /metrics when set.
	Gatherer prometheus.Gatherer
}

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Allocation AllocationHandler
	Files      FileHandler
	Metrics    http.Handler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	allocation := NewHandler(deps.Store, deps.Runs, deps.Parsers, deps.Renders, deps.Defaults)
	h := &Handlers{
		Health:     NewHealthHandler(deps.Version, deps.Runs),
		Allocation: allocation,
		Files:      allocation,
	}
	if deps.Gatherer != nil {
		h.Metrics = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Plate formats
	apiGroup.GET("/formats", handlers.Allocation.HandleFormats)

	// Allocation runs
	allocGroup := apiGroup.Group("/allocations")
	allocGroup.POST("", handlers.Allocation.HandleCreateAllocation)
	allocGroup.POST("/file", handlers.Allocation.HandleAllocateFile)
	allocGroup.GET("", handlers.Allocation.HandleListAllocations)
	allocGroup.GET("/:id", handlers.Allocation.HandleGetAllocation)
	allocGroup.DELETE("/:id", handlers.Allocation.HandleDeleteAllocation)
	allocGroup.GET("/:id/layout", handlers.Allocation.HandleGetLayout)
	allocGroup.GET("/:id/layout/msgpack", handlers.Allocation.HandleGetLayoutMsgpack)
	allocGroup.GET("/:id/plates/:index/image", handlers.Allocation.HandlePlateImage)
	allocGroup.GET("/:id/wells", handlers.Allocation.HandleQueryWells)

	// Uploaded experiment files
	filesGroup := apiGroup.Group("/files")
	filesGroup.GET("", handlers.Files.HandleListFiles)
	filesGroup.GET("/:id", handlers.Files.HandleGetFile)
	filesGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)

	if handlers.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(handlers.Metrics))
	}
}

// MiddlewareOptions tunes SetupMiddleware.
type MiddlewareOptions struct {
	RequestLogging bool
	Timeout        time.Duration
	BodyLimit      string
	AllowOrigins   []string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !opts.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || path == "/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if opts.Timeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: opts.Timeout,
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Request().URL.Path, "/image")
			},
			ErrorMessage: "Request timeout - allocation took too long",
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if len(opts.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}
