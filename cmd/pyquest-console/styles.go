package main

import "github.com/charmbracelet/lipgloss"

var (
	colorBrand   = lipgloss.Color("#cba6f7")
	colorText    = lipgloss.Color("#cdd6f4")
	colorSubtext = lipgloss.Color("#a6adc8")
	colorMantle  = lipgloss.Color("#181825")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorYellow  = lipgloss.Color("#f9e2af")
	colorRed     = lipgloss.Color("#f38ba8")
	colorBlue    = lipgloss.Color("#89b4fa")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorBrand).
			Background(colorMantle).
			Bold(true).
			Padding(0, 2)

	infoStyle   = lipgloss.NewStyle().Foreground(colorSubtext)
	outputStyle = lipgloss.NewStyle().Foreground(colorText)
	changeStyle = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	echoStyle   = lipgloss.NewStyle().Foreground(colorBlue)

	bufferStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGreen).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)
	footerStyle = lipgloss.NewStyle().Foreground(colorSubtext).Italic(true)
)

func renderLine(l line) string {
	switch l.kind {
	case lineOutput:
		return outputStyle.Render(l.text)
	case lineChange:
		return changeStyle.Render(l.text)
	case lineError:
		return errorStyle.Render(l.text)
	case lineEcho:
		return echoStyle.Render(l.text)
	default:
		return infoStyle.Render(l.text)
	}
}
