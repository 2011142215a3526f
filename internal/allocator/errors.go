package allocator

import "fmt"

// CapacityExceededError reports that the requested experiments do not fit
// on the available plates. No layout is produced.
type CapacityExceededError struct {
	WellsNeeded    int
	WellsAvailable int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("number of wells needed %d exceed available number of wells %d", e.WellsNeeded, e.WellsAvailable)
}

// ValidationError reports malformed input rejected before allocation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
