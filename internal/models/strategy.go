package models

import "fmt"

// Strategy selects which identity forms the contiguous groups of a layout.
type Strategy int

const (
	ByReagent Strategy = iota
	BySample
)

// Strategies in tie-break order.
var Strategies = []Strategy{ByReagent, BySample}

func (s Strategy) String() string {
	switch s {
	case ByReagent:
		return "by_reagent"
	case BySample:
		return "by_sample"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// MarshalText renders the strategy name in JSON and YAML.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a strategy name.
func (s *Strategy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "by_reagent":
		*s = ByReagent
	case "by_sample":
		*s = BySample
	default:
		return fmt.Errorf("unknown strategy %q", string(b))
	}
	return nil
}

// ColorBy selects the identity used to color rendered wells.
type ColorBy string

const (
	ColorBySample  ColorBy = "sample"
	ColorByReagent ColorBy = "reagent"
)

// ParseColorBy validates a color mode, defaulting to reagent.
func ParseColorBy(s string) (ColorBy, error) {
	switch ColorBy(s) {
	case "":
		return ColorByReagent, nil
	case ColorBySample, ColorByReagent:
		return ColorBy(s), nil
	}
	return "", fmt.Errorf("invalid color mode %q, expected sample or reagent", s)
}
