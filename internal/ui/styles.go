// Package ui renders crewsync terminal output.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/crewsync/crewsync/internal/status"
	"github.com/crewsync/crewsync/internal/store"
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Init picks the color profile. Colors are off when noColor is set, when
// NO_COLOR is in the environment, or when stdout is not a terminal.
func Init(noColor bool) {
	if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func RenderAccent(s string) string  { return accentStyle.Render(s) }
func RenderSuccess(s string) string { return successStyle.Render(s) }
func RenderWarn(s string) string    { return warnStyle.Render(s) }
func RenderError(s string) string   { return errorStyle.Render(s) }
func RenderMuted(s string) string   { return mutedStyle.Render(s) }

// StatusBadge renders a sync status such as "workers  ✓ synced".
func StatusBadge(s status.Status) string {
	var badge string
	switch s.State {
	case status.Synced:
		badge = RenderSuccess("✓ synced")
	case status.Syncing:
		badge = RenderAccent("↻ syncing")
	case status.Offline:
		badge = RenderWarn("○ offline")
	case status.Failed:
		msg := "✗ failed"
		if s.Err != nil {
			msg += ": " + s.Err.Error()
		}
		badge = RenderError(msg)
	default:
		badge = RenderMuted("· " + string(s.State))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, lipgloss.NewStyle().Width(16).Render(s.Entity), badge)
}

// StateBadge renders a cached record's sync state.
func StateBadge(state store.SyncState) string {
	switch state {
	case store.StateSynced:
		return RenderSuccess(string(state))
	case store.StatePending:
		return RenderWarn(string(state))
	case store.StateFailed:
		return RenderError(string(state))
	default:
		return string(state)
	}
}
