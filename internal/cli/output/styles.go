package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#A48BFF"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#1F7A3A", Dark: "#5FD787"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#FFD75F"}
	colorError   = lipgloss.AdaptiveColor{Light: "#B3261E", Dark: "#FF5F5F"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6E6E6E", Dark: "#8A8A8A"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0B63C5", Dark: "#5FAFFF"}
)

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Prompt  lipgloss.Style
	Code    lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusPending lipgloss.Style
}

// NewStyles builds the styles for renderer r.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(colorAccent),
		Header2: r.NewStyle().Bold(true),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(colorMuted),
		Success: r.NewStyle().Foreground(colorSuccess),
		Warning: r.NewStyle().Foreground(colorWarning),
		Error:   r.NewStyle().Foreground(colorError).Bold(true),
		Info:    r.NewStyle().Foreground(colorInfo),
		Prompt:  r.NewStyle().Foreground(colorAccent).Bold(true),
		Code:    r.NewStyle().Foreground(colorInfo),

		StatusSuccess: r.NewStyle().Foreground(colorSuccess).SetString("✓"),
		StatusFailed:  r.NewStyle().Foreground(colorError).SetString("✗"),
		StatusPending: r.NewStyle().Foreground(colorMuted).SetString("•"),
	}
}
