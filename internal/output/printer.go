// Package output formats CLI output: colored status lines and tables.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Printer writes status lines, colored unless disabled
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

// NewPrinter writes to stdout and stderr. Colors follow NO_COLOR and TERM.
func NewPrinter() *Printer {
	return NewPrinterWithWriters(os.Stdout, os.Stderr, ResolveColors())
}

// NewPrinterWithWriters is used by tests and by commands writing elsewhere
func NewPrinterWithWriters(out, err io.Writer, useColors bool) *Printer {
	return &Printer{out: out, err: err, useColors: useColors}
}

// ResolveColors reports whether the environment allows colors
func ResolveColors() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// Out is the writer tables render to
func (p *Printer) Out() io.Writer { return p.out }

// Info prints an informational message
func (p *Printer) Info(format string, args ...any) {
	if p.useColors {
		color.New(color.FgCyan).Fprintf(p.out, format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	if p.useColors {
		color.New(color.FgRed).Fprintf(p.err, "✗ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.err, "[ERROR] "+format+"\n", args...)
}

// Header prints a section header
func (p *Printer) Header(title string) {
	underline := make([]rune, len([]rune(title)))
	for i := range underline {
		underline[i] = '─'
	}
	if p.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
		color.New(color.FgWhite).Fprintf(p.out, "%s\n", string(underline))
		return
	}
	fmt.Fprintf(p.out, "\n%s\n%s\n", title, string(underline))
}

// Loss highlights a loss figure in red
func (p *Printer) Loss(text string) string {
	if p.useColors {
		return color.RedString(text)
	}
	return text
}
