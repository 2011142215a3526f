// Package session keeps allocation runs and their layouts for later retrieval.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/plate-filler/backend/internal/allocator"
	"github.com/plate-filler/backend/internal/metrics"
	"github.com/plate-filler/backend/internal/models"
)

// DefaultMaxRuns limits stored runs to bound memory.
const DefaultMaxRuns = 100

// RunKeepAliveWindow is how long to keep runs that are actively being viewed.
const RunKeepAliveWindow = 5 * time.Minute

var (
	// ErrRunNotFound is returned for unknown or expired run IDs.
	ErrRunNotFound = errors.New("run not found")
	// ErrNoArchive is returned by archive queries when persistence is disabled.
	ErrNoArchive = errors.New("layout archive is disabled")
)

// Options configures a Manager.
type Options struct {
	MaxRuns  int
	Parallel bool
	Archive  *Archive
	Metrics  *metrics.Collector

	// OnRemove is called after a run leaves the manager, whether deleted,
	// evicted or aged out. It runs without the manager lock held.
	OnRemove func(run *models.AllocationRun)
}

// Manager runs allocations and keeps their results.
type Manager struct {
	runs     map[string]*RunState
	mu       sync.RWMutex
	maxRuns  int
	engine   allocator.Options
	archive  *Archive
	metrics  *metrics.Collector
	onRemove func(run *models.AllocationRun)
}

// RunState holds a run record and its selected layout.
type RunState struct {
	Run          *models.AllocationRun
	Layout       models.Layout
	LastAccessed time.Time
}

// Request is the input of one allocation.
type Request struct {
	PlateSize   int
	PlateCount  int
	Experiments models.ExperimentSet
	FileID      string
}

// NewManager creates a run manager.
func NewManager(opts Options) *Manager {
	if opts.MaxRuns <= 0 {
		opts.MaxRuns = DefaultMaxRuns
	}
	return &Manager{
		runs:     make(map[string]*RunState),
		maxRuns:  opts.MaxRuns,
		engine:   allocator.Options{Parallel: opts.Parallel},
		archive:  opts.Archive,
		metrics:  opts.Metrics,
		onRemove: opts.OnRemove,
	}
}

func (m *Manager) removed(runs ...*models.AllocationRun) {
	if m.onRemove == nil {
		return
	}
	for _, run := range runs {
		m.onRemove(run)
	}
}

// Allocate validates the request, builds the layout and stores the run.
// Validation and capacity errors are returned unchanged; no run is stored.
func (m *Manager) Allocate(ctx context.Context, req Request) (*models.AllocationRun, error) {
	start := time.Now()

	if err := allocator.Validate(req.Experiments, req.PlateSize, req.PlateCount); err != nil {
		m.metrics.Observe(nil, err)
		return nil, err
	}
	format, err := models.FormatForSize(req.PlateSize)
	if err != nil {
		m.metrics.Observe(nil, err)
		return nil, err
	}

	res, err := allocator.Allocate(req.Experiments, format, req.PlateCount, m.engine)
	m.metrics.Observe(res, err)
	if err != nil {
		log.Warnf("[Allocate] rejected: %v", err)
		return nil, err
	}

	run := &models.AllocationRun{
		ID:               uuid.New().String(),
		FileID:           req.FileID,
		Status:           models.RunStatusComplete,
		PlateSize:        req.PlateSize,
		PlateCount:       req.PlateCount,
		Experiments:      req.Experiments,
		WellsNeeded:      res.WellsNeeded,
		WellsAvailable:   res.WellsAvailable,
		Strategy:         res.Selected.Strategy,
		Penalty:          res.Selected.Penalty,
		Candidates:       res.Scores(),
		PlatesUsed:       len(res.Selected.Layout.Plates),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		CreatedAt:        start,
	}

	log.Infof("[Allocate %s] %d wells on %d/%d plates, selected %s (penalty %.1f)",
		shortID(run.ID), run.WellsNeeded, run.PlatesUsed, run.PlateCount, run.Strategy, run.Penalty)

	if m.archive != nil {
		if err := m.archive.SaveLayout(ctx, run.ID, run.Strategy, res.Selected.Layout); err != nil {
			log.Warnf("[Allocate %s] failed to archive layout: %v", shortID(run.ID), err)
		}
	}

	m.mu.Lock()
	evicted := m.evictLocked()
	m.runs[run.ID] = &RunState{
		Run:          run,
		Layout:       res.Selected.Layout,
		LastAccessed: time.Now(),
	}
	m.mu.Unlock()
	m.removed(evicted...)

	return run, nil
}

// evictLocked removes the oldest runs when the manager is at capacity.
// Callers hold m.mu.
func (m *Manager) evictLocked() []*models.AllocationRun {
	if len(m.runs) < m.maxRuns {
		return nil
	}

	states := make([]*RunState, 0, len(m.runs))
	for _, s := range m.runs {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Run.CreatedAt.Before(states[j].Run.CreatedAt)
	})

	toFree := len(m.runs) - m.maxRuns + 1
	evicted := make([]*models.AllocationRun, 0, toFree)
	for _, s := range states[:toFree] {
		delete(m.runs, s.Run.ID)
		evicted = append(evicted, s.Run)
		log.Infof("[Manager] Evicted run %s to stay under %d runs", shortID(s.Run.ID), m.maxRuns)
	}
	return evicted
}

// CleanupOldRuns removes runs not accessed within maxAge, but keeps runs
// accessed within RunKeepAliveWindow. Returns the number removed.
func (m *Manager) CleanupOldRuns(maxAge time.Duration) int {
	m.mu.Lock()
	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-RunKeepAliveWindow)

	var aged []*models.AllocationRun
	for id, state := range m.runs {
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.runs, id)
			aged = append(aged, state.Run)
			log.Infof("[Manager] Cleaned up aged run %s (last accessed: %s ago)",
				shortID(id), time.Since(state.LastAccessed).Round(time.Second))
		}
	}
	m.mu.Unlock()

	m.removed(aged...)
	return len(aged)
}

// GetRun returns a run by ID.
func (m *Manager) GetRun(id string) (*models.AllocationRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.runs[id]
	if !ok {
		return nil, false
	}
	return state.Run, true
}

// GetLayout returns the selected layout of a run.
func (m *Manager) GetLayout(id string) (models.Layout, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.runs[id]
	if !ok {
		return models.Layout{}, false
	}
	return state.Layout, true
}

// TouchRun updates the LastAccessed timestamp for a run.
func (m *Manager) TouchRun(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.runs[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// ListRuns returns up to limit runs, newest first.
func (m *Manager) ListRuns(limit int) []*models.AllocationRun {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.AllocationRun, 0, len(m.runs))
	for _, s := range m.runs {
		list = append(list, s.Run)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

// DeleteRun removes a run and its archived wells.
func (m *Manager) DeleteRun(ctx context.Context, id string) error {
	m.mu.Lock()
	state, ok := m.runs[id]
	delete(m.runs, id)
	m.mu.Unlock()

	if !ok {
		return ErrRunNotFound
	}
	m.removed(state.Run)
	if m.archive != nil {
		return m.archive.DeleteRun(ctx, id)
	}
	return nil
}

// QueryWells returns archived wells of a run.
func (m *Manager) QueryWells(ctx context.Context, id string, filter models.WellFilter) ([]models.ArchivedWell, error) {
	if m.archive == nil {
		return nil, ErrNoArchive
	}
	wells, err := m.archive.QueryWells(ctx, id, filter)
	if err != nil {
		return nil, err
	}
	if len(wells) == 0 {
		// Archived runs outlive the in-memory record; only an unknown run
		// with no archived wells is missing.
		if _, ok := m.GetRun(id); !ok {
			return nil, ErrRunNotFound
		}
	}
	return wells, nil
}

// Close releases the archive.
func (m *Manager) Close() error {
	if m.archive == nil {
		return nil
	}
	return m.archive.Close()
}
