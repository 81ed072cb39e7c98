package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	kindStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	pseudoIDStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

func render(m Model) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("journey graph inspector") + "\n\n")

	for i, row := range m.rows {
		indent := strings.Repeat("  ", row.Depth)
		line := fmt.Sprintf("%s%s %s", indent, kindStyle.Render(row.Kind), pseudoIDStyle.Render(string(row.ID)))
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}

	b.WriteString(detailStyle.Render("dependencies:"))
	b.WriteString("\n" + m.detail.View())
	b.WriteString("\n" + detailStyle.Render("↑/↓ or j/k to move, pgup/pgdn to scroll dependencies, q to quit"))
	return b.String()
}
