package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RenderCache keeps rendered plate images keyed by run, plate and color mode.
// A cache with an empty directory stores nothing.
type RenderCache struct {
	dir string
}

// NewRenderCache creates the cache directory if needed.
func NewRenderCache(dir string) (*RenderCache, error) {
	if dir == "" {
		return &RenderCache{}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating render directory: %w", err)
	}
	return &RenderCache{dir: dir}, nil
}

func (c *RenderCache) path(runID string, plate int, colorBy string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%d_%s.png", runID, plate, colorBy))
}

// Get returns a cached image.
func (c *RenderCache) Get(runID string, plate int, colorBy string) ([]byte, bool) {
	if c == nil || c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.path(runID, plate, colorBy))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores an image.
func (c *RenderCache) Put(runID string, plate int, colorBy string, data []byte) error {
	if c == nil || c.dir == "" {
		return nil
	}
	if err := os.WriteFile(c.path(runID, plate, colorBy), data, 0644); err != nil {
		return fmt.Errorf("writing render: %w", err)
	}
	return nil
}

// DeleteRun removes every cached image of a run.
func (c *RenderCache) DeleteRun(runID string) error {
	if c == nil || c.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading render directory: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), runID+"_") {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("deleting render: %w", err)
			}
		}
	}
	return nil
}
