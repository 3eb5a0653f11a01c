package diag

import (
	"fmt"
	"io"
)

// Printer accumulates compile diagnostics for one function (a script or
// object event) and formats each to a byte sink as it is reported:
//
//	error in <function>[, action <n>][, argument <n>][:<line>[:<col>]]: <message>
type Printer struct {
	Name  string
	Lines *Lines
	Count uint32
	Sink  io.Writer
}

// NewPrinter returns a Printer that reports against lines under the given
// function display name, writing to sink.
func NewPrinter(name string, lines *Lines, sink io.Writer) *Printer {
	return &Printer{Name: name, Lines: lines, Sink: sink}
}

// Error reports one diagnostic located at span's low offset and
// increments the printer's error count.
func (p *Printer) Error(span Span, format string, args ...interface{}) {
	p.report("error", span, format, args...)
	p.Count++
}

// Warn reports a diagnostic that does not fail the compilation — an
// unresolved call target, or an implicit-global fallback when the host
// opts into being told about it (§9's open question on that policy).
// Warnings are deferred: they never increment Count, so build() still
// succeeds.
func (p *Printer) Warn(span Span, format string, args ...interface{}) {
	p.report("warning", span, format, args...)
}

func (p *Printer) report(label string, span Span, format string, args ...interface{}) {
	pos := p.Lines.GetPosition(span.Low)
	message := fmt.Sprintf(format, args...)

	fmt.Fprintf(p.Sink, "%s in %s", label, p.Name)
	if pos.Action != nil {
		fmt.Fprintf(p.Sink, ", action %d", *pos.Action)
	}
	if pos.Argument != nil && pos.Line == nil {
		fmt.Fprintf(p.Sink, ", argument %d", *pos.Argument)
	}
	if pos.Line != nil {
		fmt.Fprintf(p.Sink, ":%d", *pos.Line)
	}
	if pos.Column != nil {
		fmt.Fprintf(p.Sink, ":%d", *pos.Column)
	}
	fmt.Fprintf(p.Sink, ": %s\n", message)
}
