package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/plate-filler/backend/internal/api"
	"github.com/plate-filler/backend/internal/config"
	"github.com/plate-filler/backend/internal/metrics"
	"github.com/plate-filler/backend/internal/models"
	"github.com/plate-filler/backend/internal/parser"
	"github.com/plate-filler/backend/internal/session"
	"github.com/plate-filler/backend/internal/storage"
	"github.com/plate-filler/backend/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func logLevel(name string) log.Lvl {
	switch strings.ToLower(name) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := filepath.Join(filepath.Dir(exePath), "PlateFiller.config")
	if p := os.Getenv("PLATE_FILLER_CONFIG"); p != "" {
		configPath = p
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	log.SetLevel(logLevel(cfg.Advanced.LogLevel))
	log.SetHeader("${time_rfc3339} ${level}")

	embeddedMode := web.HasEmbeddedFiles()

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	renders, err := storage.NewRenderCache(cfg.Storage.RendersDirectory)
	if err != nil {
		log.Fatalf("Failed to initialize render cache: %v", err)
	}

	// Layout archive; in memory when persistence is disabled
	archive, err := session.OpenArchive(cfg.GetArchivePath(), session.ArchiveOptions{
		Threads:     cfg.Advanced.DuckDBThreads,
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
	})
	if err != nil {
		log.Fatalf("Failed to open layout archive: %v", err)
	}

	var gatherer prometheus.Gatherer
	var collector *metrics.Collector
	if cfg.Advanced.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(reg)
		gatherer = reg
	}

	// Initialize run manager
	runMgr := session.NewManager(session.Options{
		MaxRuns:  cfg.Allocation.MaxRuns,
		Parallel: cfg.Allocation.ParallelCandidates,
		Archive:  archive,
		Metrics:  collector,
		OnRemove: storage.ReleaseRun(fileStore, renders),
	})
	defer runMgr.Close()

	// Start background run cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for range ticker.C {
			if n := runMgr.CleanupOldRuns(cfg.RunTimeout()); n > 0 {
				log.Infof("[Cleanup] removed %d idle runs", n)
			}
		}
	}()

	colorBy, _ := models.ParseColorBy(cfg.Rendering.DefaultColorBy)
	handlers := api.NewHandlers(&api.Dependencies{
		Store:   fileStore,
		Runs:    runMgr,
		Parsers: parser.GetGlobalRegistry(),
		Renders: renders,
		Defaults: api.Defaults{
			PlateSize:  cfg.Allocation.DefaultPlateSize,
			PlateCount: cfg.Allocation.DefaultPlateCount,
			MaxPlates:  cfg.Allocation.MaxPlates,
			WellSize:   cfg.Rendering.WellSize,
			ColorBy:    colorBy,
		},
		Version:  Version,
		Gatherer: gatherer,
	})

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.Advanced.LogLevel))

	var origins []string
	if cfg.Server.EnableCORS {
		for _, o := range strings.Split(cfg.Server.AllowOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
	}
	api.SetupMiddleware(e, api.MiddlewareOptions{
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		Timeout:        time.Duration(cfg.Server.ReadTimeout) * time.Second,
		BodyLimit:      cfg.Server.BodyLimit,
		AllowOrigins:   origins,
	})
	api.RegisterRoutes(e, handlers)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warnf("failed to register static routes: %v", err)
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	archiveDesc := cfg.GetArchivePath()
	if archiveDesc == "" {
		archiveDesc = "in-memory"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Plate Filler Server                             ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Archive:   %-46s║\n", archiveDesc)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}

	e.Logger.Fatal(e.StartServer(s))
}
