// Package tui renders the gridwatch dashboard: one fixed-size panel per
// worker rank, laid out row-major across the terminal.
//
// Each panel is five rows tall:
//   - a top border shared with the panel to its right
//   - a blank line
//   - the worker's status message, centered
//   - the worker's progress line
//   - a blank line
//
// The renderer writes plain text with absolute cursor positioning so a panel
// can be repainted without touching the rest of the screen. Panels that do not
// fit on the terminal are skipped.
//
// Usage:
//
//	layout, err := tui.NewLayout(columns, rows, tui.DefaultPanelWidth)
//	grid, err := tui.NewGrid(os.Stderr, layout, size, board)
//
//	// Paint everything once
//	grid.FullRedraw()
//
//	// Then repaint only what changed
//	grid.Paint(board.Drain())
//
//	// Leave the cursor below the grid on exit
//	grid.Park()
package tui
