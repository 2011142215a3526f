// Package models contains domain types for the plate filler.
package models

import (
	"fmt"
	"math"
)

// Experiment is one sample group crossed with one reagent group, each pair
// placed Replicas times.
type Experiment struct {
	Samples  []string `json:"samples" yaml:"samples" msgpack:"samples"`
	Reagents []string `json:"reagents" yaml:"reagents" msgpack:"reagents"`
	Replicas int      `json:"replicas" yaml:"replicas" msgpack:"replicas"`
}

// Wells returns the number of wells this experiment occupies, saturating at
// math.MaxInt. A non-positive replica count occupies no wells.
func (e Experiment) Wells() int {
	return MulWells(MulWells(len(e.Samples), len(e.Reagents)), e.Replicas)
}

// MulWells multiplies two well counts, saturating at math.MaxInt.
// Non-positive operands yield zero.
func MulWells(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}

func addWells(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// ExperimentSet is the ordered input of one allocation run.
type ExperimentSet []Experiment

// NewExperimentSet zips the three parallel sequences into an ExperimentSet.
func NewExperimentSet(samples, reagents [][]string, replicas []int) (ExperimentSet, error) {
	if len(samples) != len(reagents) || len(reagents) != len(replicas) {
		return nil, fmt.Errorf("number of experiments is not consistent: %d sample groups, %d reagent groups, %d replica counts",
			len(samples), len(reagents), len(replicas))
	}

	set := make(ExperimentSet, len(samples))
	for i := range samples {
		set[i] = Experiment{
			Samples:  samples[i],
			Reagents: reagents[i],
			Replicas: replicas[i],
		}
	}
	return set, nil
}

// WellsNeeded sums the wells required by every experiment, saturating at
// math.MaxInt.
func (s ExperimentSet) WellsNeeded() int {
	total := 0
	for _, e := range s {
		total = addWells(total, e.Wells())
	}
	return total
}

// ExperimentFile is the content of an uploaded experiment definition.
// PlateSize and PlateCount are zero when the file does not specify them.
type ExperimentFile struct {
	PlateSize   int           `json:"plateSize,omitempty" yaml:"plate_size"`
	PlateCount  int           `json:"plateCount,omitempty" yaml:"plates"`
	Experiments ExperimentSet `json:"experiments" yaml:"experiments"`
}
