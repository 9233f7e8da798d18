// Package ui provides terminal styling helpers for CLI output.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// RenderPass renders text in the success color.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders text in the warning color.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderError renders text in the error color.
func RenderError(s string) string { return errorStyle.Render(s) }

// RenderAccent renders text in the accent color.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderDim renders de-emphasized text.
func RenderDim(s string) string { return dimStyle.Render(s) }
