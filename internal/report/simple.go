package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/trafficcloak/internal/model"
)

// SimpleWriter outputs plain text for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds the visited trail to single reports.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose prints the full trail of each session.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one report.
func (w *SimpleWriter) Write(report *model.Report) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%s session %s\n", strings.ToUpper(string(report.Kind)), report.ID)
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "  Outcome:      %s (%s)\n", label(string(report.TerminalState)), label(string(report.Reason)))
	if report.Entry != "" {
		fmt.Fprintf(&sb, "  Entry:        %s\n", report.Entry)
	}
	if report.Proxy != "" {
		fmt.Fprintf(&sb, "  Proxy:        %s\n", report.Proxy)
	}
	if report.Kind == model.KindLookup {
		fmt.Fprintf(&sb, "  Records:      %d\n", len(report.Records))
		for _, rec := range report.Records {
			fmt.Fprintf(&sb, "    %s\n", rec)
		}
	} else {
		fmt.Fprintf(&sb, "  Pages:        %d\n", report.PagesVisited)
		fmt.Fprintf(&sb, "  Failed hops:  %d\n", report.FailedNavigations)
		if report.LastLocation != "" {
			fmt.Fprintf(&sb, "  Last page:    %s\n", report.LastLocation)
		}
	}
	if report.FailureReason != "" {
		fmt.Fprintf(&sb, "  Error:        %s\n", report.FailureReason)
	}
	fmt.Fprintf(&sb, "  Started:      %s\n", formatTime(report.StartedAt))
	fmt.Fprintf(&sb, "  Duration:     %s\n", formatDuration(report.Duration()))

	if w.verbose && len(report.Trail) > 0 {
		sb.WriteString("  Trail:\n")
		for i, loc := range report.Trail {
			fmt.Fprintf(&sb, "    %2d. %s\n", i+1, loc)
		}
	}
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// WriteList outputs one line per report.
func (w *SimpleWriter) WriteList(reports []*model.Report) (int, error) {
	var sb strings.Builder

	if len(reports) == 0 {
		sb.WriteString("No sessions recorded.\n")
		return w.output.Write([]byte(sb.String()))
	}

	fmt.Fprintf(&sb, "%-8s  %-6s  %-9s  %-13s  %5s  %s\n", "ID", "KIND", "STATE", "REASON", "PAGES", "STARTED")
	for _, r := range reports {
		fmt.Fprintf(&sb, "%-8s  %-6s  %-9s  %-13s  %5d  %s\n",
			shortID(r.ID), r.Kind, r.TerminalState, r.Reason, r.PagesVisited, formatTime(r.StartedAt))
	}
	return w.output.Write([]byte(sb.String()))
}
