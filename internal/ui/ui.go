// Package ui holds terminal styling for the CLI commands.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Plain reports whether the terminal cannot render color; callers
// fall back to unstyled output.
func Plain() bool {
	return termenv.EnvColorProfile() == termenv.Ascii
}

// Success renders a green checkmark line.
func Success(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if Plain() {
		return "OK " + msg
	}
	return successStyle.Render("✓ ") + msg
}

// Error renders a red cross line.
func Error(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if Plain() {
		return "ERROR " + msg
	}
	return errorStyle.Render("✗ ") + msg
}

// Warn renders a yellow warning line.
func Warn(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if Plain() {
		return "WARN " + msg
	}
	return warnStyle.Render("! ") + msg
}

// Info renders an informational line.
func Info(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if Plain() {
		return msg
	}
	return infoStyle.Render("· ") + msg
}

// Dim renders secondary detail text.
func Dim(s string) string {
	if Plain() {
		return s
	}
	return dimStyle.Render(s)
}
