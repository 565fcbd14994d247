package summary

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	account  lipgloss.Style
	count    lipgloss.Style
	up       lipgloss.Style
	down     lipgloss.Style
	section  lipgloss.Style
	empty    lipgloss.Style
	warning  lipgloss.Style
	oldName  lipgloss.Style
	newName  lipgloss.Style
	barFill  lipgloss.Style
	barEmpty lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		account:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		count:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		up:       lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		down:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		section:  lipgloss.NewStyle().MarginTop(1),
		empty:    lipgloss.NewStyle().Faint(true),
		warning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		oldName:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		newName:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
		barFill:  lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}
