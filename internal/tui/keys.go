package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the status card bindings.
type keyMap struct {
	Toggle   key.Binding
	Activity key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Toggle: key.NewBinding(
			key.WithKeys("t", " ", "space"),
			key.WithHelp("t/space", "cambiar estado"),
		),
		Activity: key.NewBinding(
			key.WithKeys("1", "2", "3", "4"),
			key.WithHelp("1-4", "actividad"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "salir"),
		),
	}
}

// help renders the one-line key legend.
func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Toggle, k.Activity, k.Quit}
}
