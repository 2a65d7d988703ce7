// Package ui renders status lines, run summaries and prompts on the terminal.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	alertRed    = lipgloss.Color("#FF0000")
	dimWhite    = lipgloss.Color("#B0B0B0")

	titleStyle   = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(neonYellow)
	successStyle = lipgloss.NewStyle().Foreground(neonGreen).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(alertRed).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(neonOrange).Bold(true)
	accentStyle  = lipgloss.NewStyle().Foreground(neonMagenta)
	dimStyle     = lipgloss.NewStyle().Foreground(dimWhite).Faint(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Padding(0, 1)
)

// Color functions for terminal output
var (
	Cyan    = colorize(labelStyle)
	Yellow  = colorize(valueStyle)
	Red     = colorize(errorStyle)
	Green   = colorize(successStyle)
	Magenta = colorize(accentStyle)
	Orange  = colorize(warningStyle)
	Dim     = colorize(dimStyle)
)

// Out is where the print helpers write.
var Out io.Writer = os.Stdout

func colorize(style lipgloss.Style) func(string) string {
	return func(text string) string {
		return style.Render(text)
	}
}

// DisableColor drops every style to plain text
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// PrintBanner prints the program name and version
func PrintBanner(version string) {
	fmt.Fprintln(Out, titleStyle.Render("artsync")+" "+Dim(version))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Out, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Out, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(Out, Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	fmt.Fprintf(Out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in orange
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Out, Orange(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Out, Orange(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(Out, Magenta(msg))
}
