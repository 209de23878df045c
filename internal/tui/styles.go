package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	infoStyle    = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	h3Style     = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("212"))
	h4Style     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("141"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	bulletStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// renderMarkdown styles the markdown subset the agent writes and wraps it to
// width.
func renderMarkdown(text string, width int) string {
	if width <= 0 {
		width = 80
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		var styled string
		switch {
		case strings.HasPrefix(line, "####"):
			styled = h4Style.Render(strings.TrimSpace(strings.TrimLeft(line, "#")))
		case strings.HasPrefix(line, "#"):
			styled = h3Style.Render(strings.TrimSpace(strings.TrimLeft(line, "#")))
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			styled = bulletStyle.Width(width).Render("• " + strings.TrimSpace(line[2:]))
		case len(line) >= 4 && strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**"):
			styled = boldStyle.Render(strings.Trim(line, "*"))
		default:
			styled = lipgloss.NewStyle().Width(width).Render(line)
		}
		out = append(out, styled)
	}
	return strings.Join(out, "\n")
}
