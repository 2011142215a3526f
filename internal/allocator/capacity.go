package allocator

import (
	"math"

	"github.com/plate-filler/backend/internal/models"
)

// CheckCapacity fails with *CapacityExceededError when the experiments need
// more wells than plateSize*plateCount. Both sides saturate at math.MaxInt,
// so a count that does not fit in an int is always rejected.
func CheckCapacity(set models.ExperimentSet, plateSize, plateCount int) error {
	needed := set.WellsNeeded()
	available := models.MulWells(plateSize, plateCount)
	if needed > available || needed == math.MaxInt {
		return &CapacityExceededError{WellsNeeded: needed, WellsAvailable: available}
	}
	return nil
}
