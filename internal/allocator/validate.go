package allocator

import "github.com/plate-filler/backend/internal/models"

// Upper bounds on request sizes. MaxReplicas already exceeds what the
// largest run of MaxPlateCount 384-well plates can hold.
const (
	MaxPlateCount = 1000
	MaxReplicas   = MaxPlateCount * 384
)

// ValidatePlateSize accepts only the supported plate sizes.
func ValidatePlateSize(size int) error {
	for _, s := range models.SupportedSizes {
		if s == size {
			return nil
		}
	}
	return invalid("plateSize", "plate size %d, expected 96 or 384", size)
}

// ValidatePlateCount requires between 1 and MaxPlateCount plates.
func ValidatePlateCount(count int) error {
	if count <= 0 {
		return invalid("plateCount", "number of plates has to be a positive integer, but got %d", count)
	}
	if count > MaxPlateCount {
		return invalid("plateCount", "number of plates %d exceeds the limit of %d", count, MaxPlateCount)
	}
	return nil
}

// ValidateExperiments checks the per-experiment invariants the engine relies on.
func ValidateExperiments(set models.ExperimentSet) error {
	if len(set) == 0 {
		return invalid("experiments", "at least one experiment is required")
	}
	for i, e := range set {
		if err := validateGroup("samples", i, e.Samples); err != nil {
			return err
		}
		if err := validateGroup("reagents", i, e.Reagents); err != nil {
			return err
		}
		if e.Replicas <= 0 {
			return invalid("replicas", "experiment %d: replica has to be an integer greater than 0, but got %d", i, e.Replicas)
		}
		if e.Replicas > MaxReplicas {
			return invalid("replicas", "experiment %d: replica count %d exceeds the limit of %d", i, e.Replicas, MaxReplicas)
		}
	}
	return nil
}

func validateGroup(field string, experiment int, ids []string) error {
	if len(ids) == 0 {
		return invalid(field, "experiment %d has no %s", experiment, field)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return invalid(field, "experiment %d has an empty identifier", experiment)
		}
		if _, dup := seen[id]; dup {
			return invalid(field, "experiment %d has reoccurring %s %q, duplication is not allowed within an experiment", experiment, field, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Validate runs every input check for one allocation request.
func Validate(set models.ExperimentSet, plateSize, plateCount int) error {
	if err := ValidatePlateSize(plateSize); err != nil {
		return err
	}
	if err := ValidatePlateCount(plateCount); err != nil {
		return err
	}
	return ValidateExperiments(set)
}
