// Package printer renders coloured CLI output for gridctl.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/fatih/color"
)

func init() {
	// Users can disable colour with NO_COLOR
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Printer writes messages to an output and an error stream.
type Printer struct {
	out    io.Writer
	errOut io.Writer
}

// New creates a printer. Tests pass buffers.
func New(out, errOut io.Writer) *Printer {
	return &Printer{out: out, errOut: errOut}
}

// Std writes to stdout and stderr.
var Std = New(os.Stdout, os.Stderr)

// Success prints a green message with a checkmark prefix.
func (p *Printer) Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(p.out, msg)
}

// Info prints a plain message.
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// Warning prints a yellow message with a warning prefix to the error stream.
func (p *Printer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(p.errOut, msg)
}

// Step prints an emphasised step marker.
func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.out, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a titled error with optional context and suggestions to the
// error stream and returns an error carrying only the title, for cobra.
func (p *Printer) Error(title, explanation string, details map[string]string, suggestions []string) error {
	red.Fprintf(p.errOut, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(p.errOut, "%s\n", explanation)
	}

	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(p.errOut)
		for _, k := range keys {
			fmt.Fprintf(p.errOut, "  %s: %s\n", k, details[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(p.errOut, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(p.errOut, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(p.errOut, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}

// Status renders a fetch status with its colour.
func Status(s telemetry.FetchStatus) string {
	switch s {
	case telemetry.FetchStatusOK:
		return green.Sprint(s)
	case telemetry.FetchStatusTimeout:
		return yellow.Sprint(s)
	case telemetry.FetchStatusUnreachable, telemetry.FetchStatusMalformed:
		return red.Sprint(s)
	default:
		return string(s)
	}
}

// Action renders a recommendation action with its colour.
func Action(a telemetry.Action) string {
	switch a {
	case telemetry.ActionCharge:
		return green.Sprint(a)
	case telemetry.ActionDischarge, telemetry.ActionExport:
		return cyan.Sprint(a)
	case telemetry.ActionInsufficientData:
		return red.Sprint(a)
	case telemetry.ActionHold:
		return faint.Sprint(a)
	default:
		return string(a)
	}
}
