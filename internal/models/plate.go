package models

import (
	"fmt"
	"strconv"
)

// PlateFormat describes the well grid of a microplate.
type PlateFormat struct {
	Rows    int `json:"rows" msgpack:"rows"`
	Columns int `json:"columns" msgpack:"columns"`
}

// Capacity is the number of wells on one plate.
func (f PlateFormat) Capacity() int {
	return f.Rows * f.Columns
}

// Supported plate sizes.
var (
	Format96  = PlateFormat{Rows: 8, Columns: 12}
	Format384 = PlateFormat{Rows: 16, Columns: 24}
)

// SupportedSizes lists the plate sizes accepted by FormatForSize.
var SupportedSizes = []int{96, 384}

// FormatForSize returns the grid for a supported plate size.
func FormatForSize(size int) (PlateFormat, error) {
	switch size {
	case 96:
		return Format96, nil
	case 384:
		return Format384, nil
	}
	return PlateFormat{}, fmt.Errorf("invalid plate size %d, expected 96 or 384", size)
}

// Placement is the content of one filled well.
type Placement struct {
	Sample  string `json:"sample" msgpack:"sample"`
	Reagent string `json:"reagent" msgpack:"reagent"`
}

// Plate is a row-major grid of wells. A nil well is empty.
type Plate struct {
	Index   int            `json:"index" msgpack:"index"`
	Rows    int            `json:"rows" msgpack:"rows"`
	Columns int            `json:"columns" msgpack:"columns"`
	Wells   [][]*Placement `json:"wells" msgpack:"wells"`
}

// NewPlate creates an empty plate of the given format.
func NewPlate(index int, f PlateFormat) Plate {
	wells := make([][]*Placement, f.Rows)
	for r := range wells {
		wells[r] = make([]*Placement, f.Columns)
	}
	return Plate{Index: index, Rows: f.Rows, Columns: f.Columns, Wells: wells}
}

// At returns the well at row-major index i.
func (p Plate) At(i int) *Placement {
	return p.Wells[i/p.Columns][i%p.Columns]
}

// Filled counts non-empty wells.
func (p Plate) Filled() int {
	n := 0
	for _, row := range p.Wells {
		for _, w := range row {
			if w != nil {
				n++
			}
		}
	}
	return n
}

// Layout is the ordered list of plates produced by one run.
type Layout struct {
	Format PlateFormat `json:"format" msgpack:"format"`
	Plates []Plate     `json:"plates" msgpack:"plates"`
}

// Filled counts non-empty wells across all plates.
func (l Layout) Filled() int {
	n := 0
	for _, p := range l.Plates {
		n += p.Filled()
	}
	return n
}

// WellLabel returns the conventional name of a well, e.g. "A1" or "P24".
func WellLabel(row, column int) string {
	return string(rune('A'+row)) + strconv.Itoa(column+1)
}
