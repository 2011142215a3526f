// Package config provides XML-based configuration management for air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/plate-filler/backend/internal/allocator"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"PlateFiller"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Allocation engine configuration
	Allocation AllocationConfig `xml:"Allocation"`

	// Plate image rendering
	Rendering RenderingConfig `xml:"Rendering"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	UploadsDirectory  string `xml:"UploadsDirectory"`
	RendersDirectory  string `xml:"RendersDirectory"`
	ArchiveDirectory  string `xml:"ArchiveDirectory"`
	EnablePersistence bool   `xml:"EnablePersistence"`
}

// AllocationConfig contains defaults and limits for allocation runs
type AllocationConfig struct {
	DefaultPlateSize       int  `xml:"DefaultPlateSize"`
	DefaultPlateCount      int  `xml:"DefaultPlateCount"`
	MaxPlates              int  `xml:"MaxPlatesPerRun"`
	ParallelCandidates     bool `xml:"ParallelCandidates"`
	MaxRuns                int  `xml:"MaxRunsKept"`
	RunTimeoutMinutes      int  `xml:"RunTimeoutMinutes"`
	CleanupIntervalMinutes int  `xml:"CleanupIntervalMinutes"`
}

// RenderingConfig contains plate image settings
type RenderingConfig struct {
	WellSize       int    `xml:"WellSizePx"`
	DefaultColorBy string `xml:"DefaultColorBy"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	EnableMetrics        bool   `xml:"EnableMetrics"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "10M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			RendersDirectory:  "./data/renders",
			ArchiveDirectory:  "./data/archive",
			EnablePersistence: true,
		},
		Allocation: AllocationConfig{
			DefaultPlateSize:       96,
			DefaultPlateCount:      1,
			MaxPlates:              50,
			ParallelCandidates:     true,
			MaxRuns:                100,
			RunTimeoutMinutes:      30,
			CleanupIntervalMinutes: 5,
		},
		Rendering: RenderingConfig{
			WellSize:       64,
			DefaultColorBy: "reagent",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			EnableMetrics:        true,
			DuckDBThreads:        4,
			DuckDBMemoryLimit:    "1GB",
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Plate Filler Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.RendersDirectory = filepath.Join(dataDir, "renders")
		c.Storage.ArchiveDirectory = filepath.Join(dataDir, "archive")
	}

	if size := os.Getenv("PLATE_DEFAULT_SIZE"); size != "" {
		if s, err := strconv.Atoi(size); err == nil {
			c.Allocation.DefaultPlateSize = s
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, dir := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.RendersDirectory,
		&c.Storage.ArchiveDirectory,
	} {
		if !filepath.IsAbs(*dir) {
			*dir = filepath.Join(configDir, *dir)
		}
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetArchivePath returns the DuckDB archive file, or "" when persistence is
// disabled and the archive lives in memory.
func (c *AppConfig) GetArchivePath() string {
	if !c.Storage.EnablePersistence {
		return ""
	}
	return filepath.Join(c.Storage.ArchiveDirectory, "layouts.duckdb")
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// RunTimeout is how long an idle run is kept in memory.
func (c *AppConfig) RunTimeout() time.Duration {
	return time.Duration(c.Allocation.RunTimeoutMinutes) * time.Minute
}

// CleanupInterval is the period of the background run cleanup.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Allocation.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Allocation.CleanupIntervalMinutes) * time.Minute
}

// Validate rejects allocation defaults the engine cannot serve.
func (c *AppConfig) Validate() error {
	switch c.Allocation.DefaultPlateSize {
	case 96, 384:
	default:
		return fmt.Errorf("Allocation.DefaultPlateSize must be 96 or 384, got %d", c.Allocation.DefaultPlateSize)
	}
	if c.Allocation.DefaultPlateCount <= 0 {
		return fmt.Errorf("Allocation.DefaultPlateCount must be positive, got %d", c.Allocation.DefaultPlateCount)
	}
	if c.Allocation.MaxPlates > allocator.MaxPlateCount {
		return fmt.Errorf("Allocation.MaxPlatesPerRun must be at most %d, got %d", allocator.MaxPlateCount, c.Allocation.MaxPlates)
	}
	if c.Allocation.MaxPlates > 0 && c.Allocation.DefaultPlateCount > c.Allocation.MaxPlates {
		return fmt.Errorf("Allocation.DefaultPlateCount %d exceeds MaxPlatesPerRun %d",
			c.Allocation.DefaultPlateCount, c.Allocation.MaxPlates)
	}
	switch c.Rendering.DefaultColorBy {
	case "", "sample", "reagent":
	default:
		return fmt.Errorf("Rendering.DefaultColorBy must be sample or reagent, got %q", c.Rendering.DefaultColorBy)
	}
	return nil
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.RendersDirectory,
		c.Storage.ArchiveDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
