package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	card      lipgloss.Style
	title     lipgloss.Style
	free      lipgloss.Style
	busy      lipgloss.Style
	label     lipgloss.Style
	pending   lipgloss.Style
	activity  lipgloss.Style
	selected  lipgloss.Style
	helpKey   lipgloss.Style
	helpDesc  lipgloss.Style
	errorText lipgloss.Style
}

func defaultStyles() styles {
	green := lipgloss.AdaptiveColor{Light: "#1B7F3B", Dark: "#50FA7B"}
	red := lipgloss.AdaptiveColor{Light: "#B3261E", Dark: "#FF5555"}
	muted := lipgloss.AdaptiveColor{Light: "#6B6B6B", Dark: "#8A8FA3"}
	accent := lipgloss.AdaptiveColor{Light: "#5B3CC4", Dark: "#BD93F9"}

	return styles{
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 3),
		title:     lipgloss.NewStyle().Bold(true).Foreground(accent),
		free:      lipgloss.NewStyle().Bold(true).Foreground(green),
		busy:      lipgloss.NewStyle().Bold(true).Foreground(red),
		label:     lipgloss.NewStyle().Foreground(muted),
		pending:   lipgloss.NewStyle().Italic(true).Foreground(muted),
		activity:  lipgloss.NewStyle().Foreground(muted),
		selected:  lipgloss.NewStyle().Bold(true).Underline(true).Foreground(accent),
		helpKey:   lipgloss.NewStyle().Bold(true),
		helpDesc:  lipgloss.NewStyle().Foreground(muted),
		errorText: lipgloss.NewStyle().Foreground(red),
	}
}
