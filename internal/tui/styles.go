// SPDX-License-Identifier: MIT
// Package tui holds the lipgloss styling and responsive layout math
// shared by nodectl's bubbletea model. Adapted from the teacher's
// client TUI styles (src/client/tui/styles.go), trimmed to the palette
// a cluster table actually needs.
package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the rendering styles for one color scheme.
type Styles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Active   lipgloss.Style
	Standby  lipgloss.Style
	Error    lipgloss.Style
	Unknown  lipgloss.Style
	Selected lipgloss.Style
	Help     lipgloss.Style
	Border   lipgloss.Style
}

// Default returns the standard dark-terminal palette nodectl starts with.
func Default() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		Active:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Standby:  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Unknown:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Selected: lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236")),
		Help:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Border:   lipgloss.NewStyle().BorderForeground(lipgloss.Color("238")),
	}
}

// ForStatus picks the style matching a node's ha_status text.
func (s Styles) ForStatus(statusText string) lipgloss.Style {
	switch statusText {
	case "active":
		return s.Active
	case "standby":
		return s.Standby
	case "error", "unavailable":
		return s.Error
	default:
		return s.Unknown
	}
}
