package views

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type AppData struct {
	Header       string
	Clock        string
	Queue        string
	Notification string
	Detail       string
	StatusLine   string
	StatusError  bool
	Footer       string
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	clockStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Border(lipgloss.RoundedBorder()).Padding(0, 2).Align(lipgloss.Center)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	alertStyle  = lipgloss.NewStyle().Border(lipgloss.ThickBorder()).BorderForeground(lipgloss.Color("11")).Bold(true).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func RenderApp(data AppData) string {
	clock := clockStyle.Width(22).Render(data.Clock)
	queue := panelStyle.Width(64).Render(data.Queue)
	row := lipgloss.JoinHorizontal(lipgloss.Top, clock, queue)

	lines := []string{headerStyle.Render(data.Header), row}
	if data.Notification != "" {
		lines = append(lines, alertStyle.Width(88).Render(data.Notification))
	}
	if data.Detail != "" {
		lines = append(lines, panelStyle.Width(88).Render(data.Detail))
	}
	if data.StatusLine != "" {
		if data.StatusError {
			lines = append(lines, errorStyle.Render(data.StatusLine))
		} else {
			lines = append(lines, statusStyle.Render(data.StatusLine))
		}
	}
	if data.Footer != "" {
		lines = append(lines, footerStyle.Render(data.Footer))
	}
	return strings.Join(lines, "\n")
}

// RenderMarkdown falls back to the raw text when glamour cannot render it.
func RenderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	out, err := glamour.Render(md, "dark")
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
