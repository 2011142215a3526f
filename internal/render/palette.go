package render

import (
	"sync"
)

// tableauColors is the default categorical palette.
var tableauColors = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// Palette hands out colors per identity on first use and keeps them stable
// for the lifetime of the palette.
type Palette struct {
	mu     sync.Mutex
	colors []string
	next   int
	byID   map[string]string
}

// NewPalette creates a palette cycling through the given hex colors, or the
// Tableau colors when none are given.
func NewPalette(colors ...string) *Palette {
	if len(colors) == 0 {
		colors = tableauColors
	}
	return &Palette{
		colors: colors,
		byID:   make(map[string]string),
	}
}

// Color returns the hex color assigned to id.
func (p *Palette) Color(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.byID[id]; ok {
		return c
	}
	c := p.colors[p.next%len(p.colors)]
	p.next++
	p.byID[id] = c
	return c
}

// Len returns the number of identities seen so far.
func (p *Palette) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}
