// Package ui formats console output. Styling is decided once per
// destination: text meant for a pipe, a file or a buffer stays plain.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	infoStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	messageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Printer styles text for one destination. The zero Printer is plain.
type Printer struct {
	color bool
}

// For returns the Printer for text written to w. Only a colour terminal
// gets styled text.
func For(w io.Writer) Printer {
	f, ok := w.(*os.File)
	return Printer{color: ok && Colorful(f)}
}

// Colored reports whether p styles its text.
func (p Printer) Colored() bool {
	return p.color
}

// Error renders text in bold red.
func (p Printer) Error(format string, args ...any) string {
	return p.render(errorStyle, format, args)
}

// Info renders text in bold cyan.
func (p Printer) Info(format string, args ...any) string {
	return p.render(infoStyle, format, args)
}

// Message renders text in bold green.
func (p Printer) Message(format string, args ...any) string {
	return p.render(messageStyle, format, args)
}

// Warning renders text in bold yellow.
func (p Printer) Warning(format string, args ...any) string {
	return p.render(warningStyle, format, args)
}

// Dim renders secondary text.
func (p Printer) Dim(format string, args ...any) string {
	return p.render(dimStyle, format, args)
}

// Colorful reports whether f is a terminal that should receive styled text.
// NO_COLOR turns styling off everywhere.
func Colorful(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p Printer) render(style lipgloss.Style, format string, args []any) string {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	if !p.color {
		return text
	}
	return style.Render(text)
}
