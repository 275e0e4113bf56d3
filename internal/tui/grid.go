package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/ShayCichocki/gridwatch/pkg/models"
)

// StatusSource supplies the status to paint for a rank.
type StatusSource interface {
	Status(id int) (models.WorkerStatus, bool)
}

// Grid paints worker panels onto a terminal using absolute cursor positioning.
// Writes are serialized; each panel goes out in a single Write call.
type Grid struct {
	mu     sync.Mutex
	out    io.Writer
	layout Layout
	size   int
	src    StatusSource
}

// NewGrid creates a renderer for size workers.
func NewGrid(out io.Writer, layout Layout, size int, src StatusSource) (*Grid, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Grid{out: out, layout: layout, size: size, src: src}, nil
}

// Layout returns the current geometry.
func (g *Grid) Layout() Layout {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.layout
}

// SetLayout swaps the geometry used by later paints.
func (g *Grid) SetLayout(l Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layout = l
	return nil
}

// FullRedraw clears the screen and paints every visible panel in row-major
// order. Returns the number of panels painted.
func (g *Grid) FullRedraw() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := io.WriteString(g.out, ansi.EraseEntireScreen); err != nil {
		return 0, fmt.Errorf("clear screen: %w", err)
	}
	return g.paintLocked(g.layout.VisibleIDs(g.size))
}

// Paint repaints only the given ranks, leaving the rest of the screen as is.
// Off-screen and unknown ranks are skipped. An empty list writes nothing.
func (g *Grid) Paint(ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paintLocked(ids)
}

// Park moves the cursor below the grid so later output does not land on a panel.
func (g *Grid) Park() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := io.WriteString(g.out, ansi.CursorPosition(1, g.layout.BottomRow(g.size)))
	return err
}

func (g *Grid) paintLocked(ids []int) (int, error) {
	painted := 0
	var firstErr error
	for _, id := range ids {
		if id < 0 || id >= g.size || !g.layout.Visible(id) {
			continue
		}
		status, ok := g.src.Status(id)
		if !ok {
			continue
		}
		if err := g.writePanel(id, status); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("paint panel %d: %w", id, err)
			}
			continue
		}
		painted++
	}
	return painted, firstErr
}

func (g *Grid) writePanel(id int, status models.WorkerStatus) error {
	top, left := g.layout.Origin(id)

	var b strings.Builder
	for i, line := range PanelLines(status, g.layout.PanelWidth) {
		b.WriteString(ansi.CursorPosition(left, top+i))
		b.WriteString(line)
	}
	_, err := io.WriteString(g.out, b.String())
	return err
}
