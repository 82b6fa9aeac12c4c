// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"

	"github.com/apimgr/ha-coordinator/internal/coordinator"
)

// refreshInterval matches the node's own check cadence (spec section
// 4.2) so the table doesn't appear to lag behind the database.
const refreshInterval = 5 * time.Second

// NodeClient is the capability the model needs from coordinator.Client,
// narrowed so the model can be tested with a fake.
type NodeClient interface {
	GetNodes() ([]coordinator.NodeView, error)
	RemoveNode(index int) error
	SetFailoverDelay(delay int) error
}

// Model is the bubbletea model driving nodectl's cluster table.
type Model struct {
	client NodeClient
	styles Styles

	nodes    []coordinator.NodeView
	selected int
	err      error

	width  int
	height int

	confirmRemove bool
	status        string
}

type nodesMsg struct {
	nodes []coordinator.NodeView
	err   error
}

type tickMsg time.Time

type actionDoneMsg struct {
	verb string
	err  error
}

// New builds the initial model bound to client. The terminal is probed
// once up front so the very first frame (rendered before bubbletea's own
// WindowSizeMsg arrives) already picks the right column layout, rather
// than flashing compact mode for one tick.
func New(client NodeClient) Model {
	m := Model{client: client, styles: Default()}
	if w, h, err := term.GetSize(os.Stdout.Fd()); err == nil {
		m.width, m.height = w, h
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchNodes(m.client), tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchNodes(client NodeClient) tea.Cmd {
	return func() tea.Msg {
		nodes, err := client.GetNodes()
		return nodesMsg{nodes: nodes, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchNodes(m.client), tickEvery())

	case nodesMsg:
		m.nodes = msg.nodes
		m.err = msg.err
		if m.selected >= len(m.nodes) {
			m.selected = len(m.nodes) - 1
		}
		if m.selected < 0 {
			m.selected = 0
		}
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %s", msg.verb, msg.err)
		} else {
			m.status = msg.verb + " ok"
		}
		m.confirmRemove = false
		return m, fetchNodes(m.client)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmRemove {
		switch msg.String() {
		case "y":
			idx := m.selected + 1
			m.confirmRemove = false
			return m, func() tea.Msg {
				return actionDoneMsg{verb: "remove", err: m.client.RemoveNode(idx)}
			}
		default:
			m.confirmRemove = false
			return m, nil
		}
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.nodes)-1 {
			m.selected++
		}
	case "r":
		return m, fetchNodes(m.client)
	case "d":
		if len(m.nodes) > 0 {
			m.confirmRemove = true
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("ha-coordinator cluster") + "\n\n")

	if m.err != nil {
		b.WriteString(m.styles.Error.Render("error: "+m.err.Error()) + "\n\n")
	}

	mode := ModeFor(m.width)
	header := "  NAME           STATUS      LASTACCESS"
	if mode.ShowAddress() {
		header += "      ADDRESS"
	}
	if mode.ShowAge() {
		header += "       AGE(s)"
	}
	b.WriteString(m.styles.Header.Render(header) + "\n")

	for i, n := range m.nodes {
		cursor := "  "
		if i == m.selected {
			cursor = "> "
		}
		line := fmt.Sprintf("%-14s %-11s %d", n.Name, n.StatusText, n.LastAccess)
		if mode.ShowAddress() {
			line += fmt.Sprintf(" %15s", n.Address)
		}
		if mode.ShowAge() {
			line += fmt.Sprintf(" %10d", n.LastAccessAge)
		}
		row := cursor + m.styles.ForStatus(n.StatusText).Render(line)
		if i == m.selected {
			row = m.styles.Selected.Render(row)
		}
		b.WriteString(row + "\n")
	}

	b.WriteString("\n")
	if m.confirmRemove {
		b.WriteString(m.styles.Error.Render("remove selected node? (y/n)") + "\n")
	} else if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(m.styles.Help.Render("j/k: move  d: remove  r: refresh  q: quit"))
	return b.String()
}
