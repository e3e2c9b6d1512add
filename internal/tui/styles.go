package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("39")
	colorSecondary = lipgloss.Color("245")
	colorSuccess   = lipgloss.Color("42")
	colorError     = lipgloss.Color("196")
	colorWarn      = lipgloss.Color("214")
)

var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorPrimary)

var mutedStyle = lipgloss.NewStyle().
	Foreground(colorSecondary)

var ownStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorSuccess)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorError)

var statusStyles = map[string]lipgloss.Style{
	"pending":   mutedStyle,
	"running":   lipgloss.NewStyle().Foreground(colorWarn),
	"completed": lipgloss.NewStyle().Foreground(colorSuccess),
	"failed":    errorStyle,
}
