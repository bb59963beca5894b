package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// PrettyLogger prints styled, human-facing command output. Structured
// logs go through NewLogger instead. Colors are chosen for the writer, so
// output piped to a file stays plain.
type PrettyLogger struct {
	writer io.Writer
	styles PrettyStyles
}

// PrettyStyles holds the styles of each kind of line.
type PrettyStyles struct {
	Success lipgloss.Style
	Info    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style
	Value   lipgloss.Style
	Path    lipgloss.Style
}

// NewPrettyStyles returns the default styles rendered for w.
func NewPrettyStyles(w io.Writer) PrettyStyles {
	r := lipgloss.NewRenderer(w)
	return PrettyStyles{
		Success: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		Info:    r.NewStyle().Foreground(lipgloss.Color("12")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Key:     r.NewStyle().Foreground(lipgloss.Color("8")).Width(14),
		Value:   r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		Path:    r.NewStyle().Foreground(lipgloss.Color("6")).Italic(true),
	}
}

// NewPrettyLogger writes to stderr.
func NewPrettyLogger() *PrettyLogger {
	return &PrettyLogger{writer: os.Stderr, styles: NewPrettyStyles(os.Stderr)}
}

// WithWriter redirects output to w and restyles for it.
func (p *PrettyLogger) WithWriter(w io.Writer) *PrettyLogger {
	p.writer = w
	p.styles = NewPrettyStyles(w)
	return p
}

func (p *PrettyLogger) Success(message string) {
	fmt.Fprintln(p.writer, p.styles.Success.Render("✓ "+message))
}

func (p *PrettyLogger) Info(message string) {
	fmt.Fprintln(p.writer, p.styles.Info.Render(message))
}

func (p *PrettyLogger) Warn(message string) {
	fmt.Fprintln(p.writer, p.styles.Warning.Render("⚠ "+message))
}

// Error prints message, followed by err when it is set.
func (p *PrettyLogger) Error(message string, err error) {
	if err != nil {
		message += ": " + err.Error()
	}
	fmt.Fprintln(p.writer, p.styles.Error.Render("✗ "+message))
}

// Field prints an aligned key/value line.
func (p *PrettyLogger) Field(key string, value interface{}) {
	fmt.Fprintf(p.writer, "%s %s\n", p.styles.Key.Render(key), p.styles.Value.Render(fmt.Sprint(value)))
}

// Path prints an aligned label/path line.
func (p *PrettyLogger) Path(label, path string) {
	fmt.Fprintf(p.writer, "%s %s\n", p.styles.Key.Render(label), p.styles.Path.Render(path))
}
