package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/ShayCichocki/gridwatch/pkg/models"
)

// progressChrome is the panel width consumed by everything in the progress
// line except the bar itself.
const progressChrome = 25

const (
	borderCorner     = "+"
	borderHorizontal = "-"
	borderVertical   = "|"
	barFill          = "#"
)

// controlReplacer keeps worker text on a single terminal line.
var controlReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// sanitize removes escape sequences and line breaks from worker text so a
// panel can never move the cursor or touch the rest of the screen.
func sanitize(s string) string {
	s = ansi.Strip(controlReplacer.Replace(s))
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// ProgressString formats p as "PP.PP%  [####      ] C/T" for a panel of the
// given width. The bar is panelWidth-25 cells wide and filled in proportion to
// completed/total, rounded down and clamped to the bar.
func ProgressString(p models.Progress, panelWidth int) string {
	barWidth := panelWidth - progressChrome
	if barWidth < 0 {
		barWidth = 0
	}

	total := p.Total
	if total < 1 {
		total = 1
	}
	percent := 100 * float64(p.Completed) / float64(total)

	fill := p.Completed * barWidth / total
	if fill < 0 {
		fill = 0
	}
	if fill > barWidth {
		fill = barWidth
	}

	bar := strings.Repeat(barFill, fill) + strings.Repeat(" ", barWidth-fill)
	return fmt.Sprintf("%6.2f%%  [%s] %d/%d", percent, bar, p.Completed, p.Total)
}

// PanelLines returns the five lines of a worker panel, top to bottom.
// Every line after the top border is exactly panelWidth cells wide; the top
// border is one wider so its right corner meets the next panel's left edge.
func PanelLines(s models.WorkerStatus, panelWidth int) [PanelHeight]string {
	inner := panelWidth - 1
	if inner < 0 {
		inner = 0
	}
	blank := borderVertical + strings.Repeat(" ", inner)

	return [PanelHeight]string{
		borderCorner + strings.Repeat(borderHorizontal, inner) + borderCorner,
		blank,
		borderVertical + center(s.Message, inner),
		borderVertical + center(ProgressString(s.Progress, panelWidth), inner),
		blank,
	}
}

// center truncates s to width cells and pads it evenly on both sides, with
// the odd cell going to the right.
func center(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = ansi.Truncate(sanitize(s), width, "")
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	left := gap / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
}
