package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/OCAP2/mapsync/pkg/core"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	accentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// badge renders the marker's initials on its type colour.
func badge(m core.Marker) string {
	color := m.Color
	if color == "" {
		color = core.TypeColor(m.Type)
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color(color)).
		Render(fmt.Sprintf(" %-2s ", core.Initials(m.Label())))
}

func coords(x, y float64) string {
	return fmt.Sprintf("(%.2f, %.2f)", x, y)
}

func panel(lines []string) string {
	return panelStyle.Render(strings.Join(lines, "\n"))
}
