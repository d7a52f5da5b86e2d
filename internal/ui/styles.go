package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSecondary = lipgloss.Color("212") // Pink
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
)

// Styles for various UI elements
var (
	Bold   = lipgloss.NewStyle().Bold(true)
	Dim    = lipgloss.NewStyle().Foreground(ColorMuted)
	Header = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	ID       = lipgloss.NewStyle().Foreground(ColorSecondary)
	FilePath = lipgloss.NewStyle().Foreground(ColorPrimary)
	PageNum  = lipgloss.NewStyle().Foreground(ColorMuted)

	ResultScore = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1)
	Divider = lipgloss.NewStyle().
		Foreground(ColorMuted)

	Label = lipgloss.NewStyle().
		Foreground(ColorMuted).
		Width(12)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	return Divider.Render(strings.Repeat("─", width))
}

// FormatHit formats a search hit as "file p.N".
func FormatHit(file string, page int) string {
	return FilePath.Render(file) + PageNum.Render(fmt.Sprintf(" p.%d", page))
}

// FormatScore formats a raw search score. Scores are metric dependent, so
// no percentage is implied.
func FormatScore(score float64) string {
	return ResultScore.Render(fmt.Sprintf("%.4f", score))
}

// Field renders one "label value" line of a detail view.
func Field(label string, value any) string {
	return Label.Render(label) + fmt.Sprint(value)
}
