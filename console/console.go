// Package console prints the build's user-facing progress lines.
//
// Progress banners are blue, completion messages green and failures red.
// Colour is only emitted when the destination is a terminal.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Console writes styled lines to an output stream.
type Console struct {
	out   io.Writer
	color bool

	info    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	failure lipgloss.Style
	faint   lipgloss.Style
}

// New returns a Console writing to w. Colour is enabled when w is a terminal.
func New(w io.Writer) *Console {
	return newConsole(w, isTerminal(w))
}

// NewPlain returns a Console that never emits colour.
func NewPlain(w io.Writer) *Console {
	return newConsole(w, false)
}

// Stdout returns a Console for os.Stdout.
func Stdout() *Console {
	return New(os.Stdout)
}

// Stderr returns a Console for os.Stderr.
func Stderr() *Console {
	return New(os.Stderr)
}

func newConsole(w io.Writer, color bool) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		out:     w,
		color:   color,
		info:    r.NewStyle().Foreground(lipgloss.Color("12")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("11")),
		failure: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		faint:   r.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Writer returns the underlying stream, for tool output passthrough.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Colored reports whether styled output is enabled.
func (c *Console) Colored() bool {
	return c.color
}

func (c *Console) line(style lipgloss.Style, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.color {
		msg = style.Render(msg)
	}
	fmt.Fprintln(c.out, msg)
}

// Info prints a progress banner.
func (c *Console) Info(format string, args ...any) {
	c.line(c.info, format, args...)
}

// Success prints a completion message.
func (c *Console) Success(format string, args ...any) {
	c.line(c.success, format, args...)
}

// Warn prints a non-fatal notice.
func (c *Console) Warn(format string, args ...any) {
	c.line(c.warn, format, args...)
}

// Error prints a failure.
func (c *Console) Error(format string, args ...any) {
	c.line(c.failure, format, args...)
}

// Detail prints de-emphasised text such as an echoed command line.
func (c *Console) Detail(format string, args ...any) {
	c.line(c.faint, format, args...)
}

// Println prints an unstyled line.
func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// Printf prints unstyled formatted text.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
