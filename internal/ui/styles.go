// Package ui renders CLI output: colored status markers, sync state badges
// and aligned tables. Color is disabled when stdout is not a terminal or
// NO_COLOR is set.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func init() {
	lipgloss.SetColorProfile(DetectProfile(os.Stdout))
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// DetectProfile picks the color profile for f.
func DetectProfile(f *os.File) termenv.Profile {
	if os.Getenv("NO_COLOR") != "" || !IsTerminal(f) {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders s as a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders s as a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders s as a failure.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders s de-emphasized.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderSyncState renders a sync state with its color.
func RenderSyncState(s schema.SyncState) string {
	switch s {
	case schema.SyncStateSynced:
		return RenderPass(s.String())
	case schema.SyncStatePending:
		return RenderWarn(s.String())
	case schema.SyncStateSyncing:
		return RenderAccent(s.String())
	case schema.SyncStateError:
		return RenderFail(s.String())
	}
	return s.String()
}

// RenderStatus renders an inspection status with its color.
func RenderStatus(s schema.Status) string {
	switch s {
	case schema.StatusFinalized, schema.StatusResolved:
		return RenderPass(s.String())
	case schema.StatusNeedsAdjustment:
		return RenderWarn(s.String())
	}
	return RenderMuted(s.String())
}

// Table renders rows under headers with columns padded to the widest cell.
// Cell width ignores ANSI styling.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style *lipgloss.Style) {
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := widths[i] - lipgloss.Width(cell)
			if style != nil {
				cell = style.Render(cell)
			}
			b.WriteString(cell)
			if i < len(widths)-1 {
				b.WriteString(strings.Repeat(" ", pad+2))
			}
		}
		b.WriteString("\n")
	}
	writeRow(headers, &headerStyle)
	for _, row := range rows {
		writeRow(row, nil)
	}
	return b.String()
}
