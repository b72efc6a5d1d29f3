package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Key     lipgloss.Style
}

func newStyles(lr *lipgloss.Renderer, color bool) *Styles {
	if !color {
		plain := lr.NewStyle()
		return &Styles{
			Header1: plain, Header2: plain, Success: plain, Warning: plain,
			Error: plain, Muted: plain, Key: plain,
		}
	}
	return &Styles{
		Header1: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: lr.NewStyle().Bold(true),
		Success: lr.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lr.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lr.NewStyle().Foreground(lipgloss.Color("9")),
		Muted:   lr.NewStyle().Foreground(lipgloss.Color("8")),
		Key:     lr.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// StatusStyle picks a style for a run or step status.
func (s *Styles) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "completed", "success":
		return s.Success
	case "failed":
		return s.Error
	case "cancelled", "skipped":
		return s.Warning
	default:
		return s.Muted
	}
}
