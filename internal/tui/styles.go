// SPDX-License-Identifier: MIT
package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

var (
	green = lipgloss.Color("#25A065")
	cream = lipgloss.Color("#FFFDF5")
	red   = lipgloss.Color("#C0392B")

	titleStyle     = lipgloss.NewStyle().Foreground(cream).Background(green).Padding(0, 1).Bold(true)
	infoStyle      = lipgloss.NewStyle().Foreground(cream)
	highlightStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	alertStyle     = lipgloss.NewStyle().Foreground(cream).Background(red).Padding(0, 1).Bold(true)
	dimStyle       = lipgloss.NewStyle().Faint(true)
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// helpLine renders bindings as "key action" pairs.
func helpLine(bindings ...key.Binding) string {
	s := ""
	for i, b := range bindings {
		if i > 0 {
			s += " • "
		}
		h := b.Help()
		s += h.Key + " " + h.Desc
	}
	return infoStyle.Render(s)
}
