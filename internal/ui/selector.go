// Package ui implements the two small interactive surfaces Oxy's CLI needs:
// a picker for choosing a configured server or forwarding mode (used by the
// `guide` subcommand), and a progress bar driven by
// file-transfer byte counts. Both are built on Bubble Tea, following the
// teacher's own presentation/bubble_tea package.
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// selector is a single-choice list model: arrow keys move the cursor, enter
// commits a choice, q quits without one. Adapted from the teacher's
// bubble_tea.Selector, generalized to return the full chosen line (not just
// its first whitespace-delimited token) since peer names and forward specs
// can't be safely cut that way.
type selector struct {
	placeholder string
	options     []string
	cursor      int
	choice      string
	checked     int
	quit        bool
}

func newSelector(placeholder string, options []string) selector {
	return selector{placeholder: placeholder, options: options, checked: -1}
}

func (m selector) Init() tea.Cmd { return nil }

func (m selector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.options) > 0 {
			m.choice = m.options[m.cursor]
			m.checked = m.cursor
		}
		return m, tea.Quit
	case "q", "ctrl+c":
		m.quit = true
		return m, tea.Quit
	}
	return m, nil
}

func (m selector) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", m.placeholder)
	for i, option := range m.options {
		mark := "[ ]"
		if m.checked == i {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %s", mark, option)
		if m.cursor == i {
			line = "\033[1;32m" + line + "\033[0m"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n(up/down to move, enter to choose, q to cancel)\n")
	return b.String()
}

// ErrCanceled is returned by Select when the user quits without
// choosing.
var ErrCanceled = fmt.Errorf("ui: selection canceled")

// Select runs an interactive list picker over options and returns the chosen
// line. Used by the `guide` subcommand for both the server picker and the
// forwarding-mode picker.
func Select(prompt string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("ui: no options to choose from")
	}
	m := newSelector(prompt, options)
	program := tea.NewProgram(m)
	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("ui: run selector: %w", err)
	}
	result := final.(selector)
	if result.quit || result.choice == "" {
		return "", ErrCanceled
	}
	return result.choice, nil
}
