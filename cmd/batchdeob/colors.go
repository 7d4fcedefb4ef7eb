package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	styleMarker = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleTrait  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	styleHint   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	styleSource = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
)

// Colorize renders text with style if color is enabled
func Colorize(text string, style lipgloss.Style, useColor bool) string {
	if !useColor {
		return text
	}
	return style.Render(text)
}

// ShouldUseColor determines if color output should be used on w.
// Respects --no-color flag and NO_COLOR environment variable
func ShouldUseColor(w io.Writer, noColorFlag bool) bool {
	if noColorFlag {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
