// Package ui styles charterctl output for color terminals.
package ui

import "fmt"

// ANSI 256-color codes.
const (
	colorAccent = 74  // blue: headers, charter ids
	colorCmd    = 250 // light gray: command names
	colorMuted  = 245 // gray: hints and defaults
	colorWarn   = 172 // orange: concurrent-edit notices
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent styles headers and identifiers.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted styles secondary text.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand styles command names in help output.
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderWarn styles notices the user should not miss.
func RenderWarn(s string) string { return render(colorWarn, s) }

// ForceNoColor disables styling for the rest of the process.
func ForceNoColor() {
	noColor = true
}
