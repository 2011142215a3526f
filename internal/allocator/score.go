package allocator

import "github.com/plate-filler/backend/internal/models"

// Penalty charged per identity change between consecutive filled wells.
const (
	SampleChangePenalty  = 1.0
	ReagentChangePenalty = 1.5
)

// Score walks the plates in well order and charges every change of sample
// or reagent between consecutive filled wells.
func Score(plates []models.Plate) float64 {
	var (
		penalty     float64
		started     bool
		prevSample  string
		prevReagent string
	)

	for _, plate := range plates {
		for _, row := range plate.Wells {
			for _, w := range row {
				if w == nil {
					continue
				}
				if !started {
					prevSample, prevReagent = w.Sample, w.Reagent
					started = true
					continue
				}
				if w.Sample != prevSample {
					penalty += SampleChangePenalty
					prevSample = w.Sample
				}
				if w.Reagent != prevReagent {
					penalty += ReagentChangePenalty
					prevReagent = w.Reagent
				}
			}
		}
	}
	return penalty
}
