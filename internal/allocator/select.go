// Package allocator assigns experiment placements to microplate wells and
// picks the layout that keeps samples and reagents contiguous.
package allocator

import (
	"github.com/plate-filler/backend/internal/models"
	"golang.org/x/sync/errgroup"
)

// Options tunes an allocation run.
type Options struct {
	// Parallel builds the two candidate layouts concurrently.
	Parallel bool
}

// Candidate is one strategy's layout and its penalty.
type Candidate struct {
	Strategy models.Strategy
	Layout   models.Layout
	Penalty  float64
}

// Result is the outcome of a successful allocation.
type Result struct {
	Selected       Candidate
	Candidates     []Candidate
	WellsNeeded    int
	WellsAvailable int
}

// Scores summarizes the candidates for storage.
func (r *Result) Scores() []models.CandidateScore {
	out := make([]models.CandidateScore, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = models.CandidateScore{Strategy: c.Strategy, Penalty: c.Penalty, Plates: len(c.Layout.Plates)}
	}
	return out
}

// Build expands and packs the experiments under one strategy and scores it.
func Build(set models.ExperimentSet, f models.PlateFormat, s models.Strategy) Candidate {
	plates := Pack(Expand(set, s), f)
	return Candidate{
		Strategy: s,
		Layout:   models.Layout{Format: f, Plates: plates},
		Penalty:  Score(plates),
	}
}

// Allocate checks capacity, builds both candidate layouts and keeps the one
// with the lower penalty. Ties keep the reagent-grouped layout.
func Allocate(set models.ExperimentSet, f models.PlateFormat, plateCount int, opts Options) (*Result, error) {
	if err := CheckCapacity(set, f.Capacity(), plateCount); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(models.Strategies))
	if opts.Parallel {
		var g errgroup.Group
		for i, s := range models.Strategies {
			i, s := i, s
			g.Go(func() error {
				candidates[i] = Build(set, f, s)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, s := range models.Strategies {
			candidates[i] = Build(set, f, s)
		}
	}

	return &Result{
		Selected:       pick(candidates),
		Candidates:     candidates,
		WellsNeeded:    set.WellsNeeded(),
		WellsAvailable: models.MulWells(f.Capacity(), plateCount),
	}, nil
}

// pick returns the first candidate with the lowest penalty.
func pick(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Penalty < best.Penalty {
			best = c
		}
	}
	return best
}
