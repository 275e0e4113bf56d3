package tui

import (
	"errors"
	"fmt"
)

// PanelHeight is the number of terminal rows one worker panel occupies.
const PanelHeight = 5

// MinPanelWidth is the narrowest panel that still fits the progress chrome
// around a zero-width bar.
const MinPanelWidth = progressChrome + 1

// Default geometry, used when the terminal size cannot be detected.
const (
	DefaultColumns    = 211
	DefaultRows       = 71
	DefaultPanelWidth = 50
)

// ErrLayout is returned for geometry that cannot hold a single panel.
var ErrLayout = errors.New("invalid layout")

// Layout maps worker ranks onto a grid of fixed-size panels.
type Layout struct {
	// Columns is the terminal width.
	Columns int
	// Rows is the terminal height.
	Rows int
	// PanelWidth is the width of one panel, which also sets panels per row.
	PanelWidth int
}

// NewLayout validates and returns a layout.
func NewLayout(columns, rows, panelWidth int) (Layout, error) {
	l := Layout{Columns: columns, Rows: rows, PanelWidth: panelWidth}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// DefaultLayout returns the default geometry.
func DefaultLayout() Layout {
	return Layout{Columns: DefaultColumns, Rows: DefaultRows, PanelWidth: DefaultPanelWidth}
}

// Validate returns an error unless at least one panel column fits.
func (l Layout) Validate() error {
	if l.PanelWidth < MinPanelWidth {
		return fmt.Errorf("%w: panel width %d is below %d", ErrLayout, l.PanelWidth, MinPanelWidth)
	}
	if l.Columns < l.PanelWidth {
		return fmt.Errorf("%w: %d columns cannot hold a %d wide panel", ErrLayout, l.Columns, l.PanelWidth)
	}
	if l.Rows < 1 {
		return fmt.Errorf("%w: %d rows", ErrLayout, l.Rows)
	}
	return nil
}

// PanelsPerRow returns how many panels fit side by side.
func (l Layout) PanelsPerRow() int {
	if l.PanelWidth <= 0 {
		return 0
	}
	return l.Columns / l.PanelWidth
}

// Cell returns the grid row and column of rank.
func (l Layout) Cell(rank int) (row, col int) {
	ppr := l.PanelsPerRow()
	if ppr == 0 {
		return 0, 0
	}
	return rank / ppr, rank % ppr
}

// Origin returns the 1-based terminal row and column of the panel's top-left corner.
func (l Layout) Origin(rank int) (top, left int) {
	row, col := l.Cell(rank)
	return row*PanelHeight + 1, col*l.PanelWidth + 1
}

// Visible reports whether the whole panel for rank fits on screen.
// Panels past the bottom edge are never drawn.
func (l Layout) Visible(rank int) bool {
	if rank < 0 || l.PanelsPerRow() == 0 {
		return false
	}
	top, _ := l.Origin(rank)
	return top+PanelHeight-1 <= l.Rows
}

// GridRows returns how many panel rows size workers need, visible or not.
func (l Layout) GridRows(size int) int {
	ppr := l.PanelsPerRow()
	if ppr == 0 || size <= 0 {
		return 0
	}
	return (size + ppr - 1) / ppr
}

// VisibleIDs returns the ranks in [0, size) that fit on screen, in row-major order.
func (l Layout) VisibleIDs(size int) []int {
	ids := make([]int, 0, size)
	for rank := 0; rank < size; rank++ {
		if !l.Visible(rank) {
			// Ranks grow row-major, so every later rank is lower on screen.
			break
		}
		ids = append(ids, rank)
	}
	return ids
}

// BottomRow returns the first terminal row below the drawn grid, clamped to
// the screen height.
func (l Layout) BottomRow(size int) int {
	row := l.GridRows(size)*PanelHeight + 1
	if row > l.Rows {
		row = l.Rows
	}
	if row < 1 {
		row = 1
	}
	return row
}
