// Package render draws plate layouts as PNG images.
package render

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/plate-filler/backend/internal/models"
)

// ErrNoPlates is returned when a layout has nothing to draw.
var ErrNoPlates = errors.New("no plates to display")

// DefaultWellSize is the edge length of one well in pixels.
const DefaultWellSize = 64

// Renderer draws plates with a shared palette so an identity keeps its color
// across plates and color modes.
type Renderer struct {
	WellSize int
	palette  *Palette
}

// NewRenderer creates a renderer. A wellSize <= 0 selects DefaultWellSize.
func NewRenderer(wellSize int, palette *Palette) *Renderer {
	if wellSize <= 0 {
		wellSize = DefaultWellSize
	}
	if palette == nil {
		palette = NewPalette()
	}
	return &Renderer{WellSize: wellSize, palette: palette}
}

// Palette exposes the renderer's color assignments.
func (r *Renderer) Palette() *Palette {
	return r.palette
}

// Title is the caption drawn above a plate.
func Title(colorBy models.ColorBy, plateIndex int) string {
	mode := string(colorBy)
	if mode != "" {
		mode = strings.ToUpper(mode[:1]) + mode[1:]
	}
	return fmt.Sprintf("Colored by %s | Plate Index: %d", mode, plateIndex+1)
}

// DrawPlate renders one plate.
func (r *Renderer) DrawPlate(plate models.Plate, colorBy models.ColorBy) image.Image {
	cell := float64(r.WellSize)
	margin := cell
	width := int(margin + cell*float64(plate.Columns) + cell/2)
	height := int(margin*1.5 + cell*float64(plate.Rows) + cell/2)

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(Title(colorBy, plate.Index), float64(width)/2, margin*0.4, 0.5, 0.5)

	top := margin * 1.5
	for c := 0; c < plate.Columns; c++ {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(strconv.Itoa(c+1), margin+cell*(float64(c)+0.5), top-cell*0.3, 0.5, 0.5)
	}

	for row := 0; row < plate.Rows; row++ {
		y := top + cell*float64(row)
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(string(rune('A'+row)), margin*0.5, y+cell/2, 0.5, 0.5)

		for col := 0; col < plate.Columns; col++ {
			x := margin + cell*float64(col)
			w := plate.Wells[row][col]

			dc.DrawRectangle(x, y, cell, cell)
			if w == nil {
				dc.SetRGB(1, 1, 1)
			} else {
				dc.SetHexColor(r.palette.Color(identity(w, colorBy)))
			}
			dc.FillPreserve()
			dc.SetRGB(0, 0, 0)
			dc.SetLineWidth(2)
			dc.Stroke()

			if w != nil {
				dc.DrawStringAnchored(w.Sample, x+cell/2, y+cell/2, 0.5, -0.1)
				dc.DrawStringAnchored(w.Reagent, x+cell/2, y+cell/2, 0.5, 1.1)
			}
		}
	}

	return dc.Image()
}

// WritePNG renders one plate of a layout as PNG.
func (r *Renderer) WritePNG(w io.Writer, layout models.Layout, plateIndex int, colorBy models.ColorBy) error {
	if len(layout.Plates) == 0 {
		return ErrNoPlates
	}
	if plateIndex < 0 || plateIndex >= len(layout.Plates) {
		return fmt.Errorf("plate index %d out of range [0,%d)", plateIndex, len(layout.Plates))
	}
	return gg.NewContextForImage(r.DrawPlate(layout.Plates[plateIndex], colorBy)).EncodePNG(w)
}

// DrawLayout renders every plate, first colored by reagent, then by sample.
func (r *Renderer) DrawLayout(layout models.Layout) (byReagent, bySample []image.Image, err error) {
	if len(layout.Plates) == 0 {
		return nil, nil, ErrNoPlates
	}
	for _, plate := range layout.Plates {
		byReagent = append(byReagent, r.DrawPlate(plate, models.ColorByReagent))
	}
	for _, plate := range layout.Plates {
		bySample = append(bySample, r.DrawPlate(plate, models.ColorBySample))
	}
	return byReagent, bySample, nil
}

// Prime assigns palette colors in the order DrawLayout would, so a single
// plate drawn afterwards matches the full layout rendering.
func (r *Renderer) Prime(layout models.Layout) {
	for _, colorBy := range []models.ColorBy{models.ColorByReagent, models.ColorBySample} {
		for _, plate := range layout.Plates {
			for _, row := range plate.Wells {
				for _, w := range row {
					if w != nil {
						r.palette.Color(identity(w, colorBy))
					}
				}
			}
		}
	}
}

func identity(w *models.Placement, colorBy models.ColorBy) string {
	if colorBy == models.ColorBySample {
		return w.Sample
	}
	return w.Reagent
}
