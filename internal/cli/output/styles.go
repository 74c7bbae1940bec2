package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by text output.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	// Change kinds
	Add      lipgloss.Style
	Remove   lipgloss.Style
	Change   lipgloss.Style
	Failure  lipgloss.Style
	Position lipgloss.Style

	SuccessIcon string
	WarningIcon string
	ErrorIcon   string
}

// NewStyles builds styles bound to r.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: r.NewStyle().Bold(true),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("14")),

		Add:      r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		Remove:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Change:   r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		Failure:  r.NewStyle().Foreground(lipgloss.Color("13")),
		Position: r.NewStyle().Foreground(lipgloss.Color("8")),

		SuccessIcon: "✓",
		WarningIcon: "!",
		ErrorIcon:   "✗",
	}
}
