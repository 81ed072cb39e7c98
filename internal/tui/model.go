// Package tui implements a read-only terminal inspector over a compiled
// journey's AST and dependency graph, for the `journeyengine inspect`
// command: step through nodes, see their kind and dependencies, without any
// mutation surface.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/depgraph"
)

// NodeRow is one line of the inspector's node list.
type NodeRow struct {
	ID    ast.ID
	Kind  string
	Depth int
}

// Model is the Bubbletea state for the inspector. The detail pane (a
// selected node's dependency summary) is rendered into a bubbles/viewport so
// it scrolls independently of the node list once a node has more dependency
// edges than fit on screen.
type Model struct {
	nodes    map[ast.ID]*ast.Node
	graph    *depgraph.Graph
	rows     []NodeRow
	cursor   int
	height   int
	width    int
	quitted  bool
	detail   viewport.Model
}

// NewModel builds an inspector model over a compiled AST, walking it once
// to produce the flattened, indented row list the list view renders.
func NewModel(root *ast.Node, nodes *ast.NodeRegistry, graph *depgraph.Graph) Model {
	m := Model{nodes: nodes.All(), graph: graph, height: 24, width: 80}
	m.detail = viewport.New(m.width, 8)
	v := &rowCollector{model: &m}
	ast.Walk(root, v)
	m.syncDetail()
	return m
}

// syncDetail refreshes the detail viewport's content from the node under the
// cursor; called whenever the cursor or window size changes.
func (m *Model) syncDetail() {
	m.detail.SetContent(m.DependencySummary())
}

type rowCollector struct {
	model *Model
	depth int
}

func (c *rowCollector) EnterNode(n *ast.Node, _ *ast.TraversalContext) ast.VisitResult {
	c.model.rows = append(c.model.rows, NodeRow{ID: n.ID, Kind: string(n.Kind), Depth: c.depth})
	c.depth++
	return ast.Continue
}

func (c *rowCollector) ExitNode(n *ast.Node, _ *ast.TraversalContext) {
	c.depth--
}

// Init satisfies tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update satisfies tea.Model: arrow keys / j,k move the cursor, q/ctrl+c
// quit. No key mutates the underlying graph.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.detail.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitted = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.syncDetail()
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
				m.syncDetail()
			}
		default:
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View satisfies tea.Model.
func (m Model) View() string {
	if m.quitted {
		return ""
	}
	return render(m)
}

// SelectedNode returns the node currently under the cursor.
func (m Model) SelectedNode() (*ast.Node, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil, false
	}
	n, ok := m.nodes[m.rows[m.cursor].ID]
	return n, ok
}

// DependencySummary renders the dependency edges for the node under the
// cursor, used by the detail pane.
func (m Model) DependencySummary() string {
	n, ok := m.SelectedNode()
	if !ok {
		return ""
	}
	deps := m.graph.DependsOn(n.ID)
	if len(deps) == 0 {
		return "no dependencies"
	}
	out := ""
	for _, e := range deps {
		out += fmt.Sprintf("%s (%s)\n", e.From, e.Property)
	}
	return out
}
