package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/gridwatch/pkg/models"
)

func TestProgressString_Half(t *testing.T) {
	got := ProgressString(models.Progress{Completed: 50, Total: 100}, 50)

	want := " 50.00%  [" + strings.Repeat("#", 12) + strings.Repeat(" ", 13) + "] 50/100"
	if got != want {
		t.Errorf("ProgressString(50/100, 50) = %q, want %q", got, want)
	}
	if !strings.Contains(got, "50.00%") {
		t.Errorf("missing percentage in %q", got)
	}
}

func TestProgressString_Cases(t *testing.T) {
	tests := []struct {
		name     string
		progress models.Progress
		width    int
		wantPct  string
		wantFill int
		wantBar  int
	}{
		{"placeholder", models.Progress{Completed: 0, Total: 1}, 50, "  0.00%", 0, 25},
		{"done", models.Progress{Completed: 7, Total: 7}, 50, "100.00%", 25, 25},
		{"rounds down", models.Progress{Completed: 1, Total: 3}, 50, " 33.33%", 8, 25},
		{"overshoot clamps bar", models.Progress{Completed: 150, Total: 100}, 50, "150.00%", 25, 25},
		{"zero total treated as one", models.Progress{Completed: 0, Total: 0}, 50, "  0.00%", 0, 25},
		{"minimum width has empty bar", models.Progress{Completed: 1, Total: 2}, MinPanelWidth, " 50.00%", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProgressString(tt.progress, tt.width)
			if !strings.HasPrefix(got, tt.wantPct+"  [") {
				t.Errorf("ProgressString = %q, want prefix %q", got, tt.wantPct+"  [")
			}
			open := strings.Index(got, "[")
			closing := strings.Index(got, "]")
			bar := got[open+1 : closing]
			if len(bar) != tt.wantBar {
				t.Errorf("bar width = %d, want %d (%q)", len(bar), tt.wantBar, got)
			}
			if fill := strings.Count(bar, "#"); fill != tt.wantFill {
				t.Errorf("fill = %d, want %d (%q)", fill, tt.wantFill, got)
			}
		})
	}
}

func TestPanelLines(t *testing.T) {
	status := models.WorkerStatus{ID: 3, Message: "hashing", Progress: models.Progress{Completed: 1, Total: 4}}
	lines := PanelLines(status, 30)

	if lines[0] != "+"+strings.Repeat("-", 29)+"+" {
		t.Errorf("top border = %q", lines[0])
	}
	for i := 1; i < PanelHeight; i++ {
		if !strings.HasPrefix(lines[i], "|") {
			t.Errorf("line %d missing left border: %q", i, lines[i])
		}
		if w := lipgloss.Width(lines[i]); w != 30 {
			t.Errorf("line %d width = %d, want 30: %q", i, w, lines[i])
		}
	}
	if strings.TrimSpace(lines[1]) != "|" || strings.TrimSpace(lines[4]) != "|" {
		t.Errorf("spacer lines should be blank: %q / %q", lines[1], lines[4])
	}

	// "hashing" is 7 wide in 29 cells: 11 left, 11 right.
	if lines[2] != "|"+strings.Repeat(" ", 11)+"hashing"+strings.Repeat(" ", 11) {
		t.Errorf("message line = %q", lines[2])
	}
	if !strings.Contains(lines[3], "25.00%") || !strings.Contains(lines[3], "1/4") {
		t.Errorf("progress line = %q", lines[3])
	}
}

func TestPanelLines_TruncatesLongText(t *testing.T) {
	status := models.WorkerStatus{
		Message:  strings.Repeat("x", 200) + "\nsecond line",
		Progress: models.Progress{Completed: 123456789, Total: 987654321},
	}
	lines := PanelLines(status, 40)

	for i := 1; i < PanelHeight; i++ {
		if w := lipgloss.Width(lines[i]); w != 40 {
			t.Errorf("line %d width = %d, want 40", i, w)
		}
		if strings.Contains(lines[i], "\n") {
			t.Errorf("line %d contains a newline", i)
		}
	}
}

func TestCenter(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"ab", 6, "  ab  "},
		{"ab", 5, " ab  "},
		{"abcdef", 4, "abcd"},
		{"", 3, "   "},
		{"tab\there", 8, "tab here"},
		{"x", 0, ""},
	}

	for _, tt := range tests {
		if got := center(tt.in, tt.width); got != tt.want {
			t.Errorf("center(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestPanelLines_StripsEscapeSequences(t *testing.T) {
	status := models.WorkerStatus{Message: "\x1b[2J\x1b[1;1Hpwned\a"}
	lines := PanelLines(status, 50)

	if strings.ContainsAny(lines[2], "\x1b\a") {
		t.Errorf("message line kept control bytes: %q", lines[2])
	}
	if want := "|" + center("pwned", 49); lines[2] != want {
		t.Errorf("message line = %q, want %q", lines[2], want)
	}
	if w := len(lines[2]); w != 50 {
		t.Errorf("message line is %d bytes, want 50", w)
	}
}
