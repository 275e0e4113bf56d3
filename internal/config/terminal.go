package config

import (
	"golang.org/x/term"

	"github.com/ShayCichocki/gridwatch/internal/tui"
)

// Fallback terminal size used when the output is not a terminal.
const (
	FallbackRows    = tui.DefaultRows
	FallbackColumns = tui.DefaultColumns
)

// TerminalSize returns the size of the terminal on fd, or the fallback size
// when fd is not a terminal or cannot be queried.
func TerminalSize(fd int) (columns, rows int) {
	if !term.IsTerminal(fd) {
		return FallbackColumns, FallbackRows
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return FallbackColumns, FallbackRows
	}
	return w, h
}

// Layout resolves the dashboard geometry, filling zero rows or columns from
// the terminal on fd.
func (d DashboardConfig) Layout(fd int) (tui.Layout, error) {
	columns, rows := d.Columns, d.Rows
	if columns == 0 || rows == 0 {
		termColumns, termRows := TerminalSize(fd)
		if columns == 0 {
			columns = termColumns
		}
		if rows == 0 {
			rows = termRows
		}
	}
	return tui.NewLayout(columns, rows, d.PanelWidth)
}
