package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/trafficcloak/internal/model"
)

// MarkdownWriter outputs GitHub flavored Markdown with tables, alerts and
// a mermaid pie chart for history lists.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs one report.
func (w *MarkdownWriter) Write(report *model.Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1(label(string(report.Kind)) + " Session")
	md.PlainText("")

	rows := [][]string{
		{"ID", "`" + report.ID + "`"},
		{"Outcome", label(string(report.TerminalState))},
		{"Reason", label(string(report.Reason))},
	}
	if report.Entry != "" {
		rows = append(rows, []string{"Entry", report.Entry})
	}
	if report.Proxy != "" {
		rows = append(rows, []string{"Proxy", "`" + report.Proxy + "`"})
	}
	if report.Kind == model.KindLookup {
		rows = append(rows, []string{"Records", strconv.Itoa(len(report.Records))})
	} else {
		rows = append(rows,
			[]string{"Pages Visited", strconv.Itoa(report.PagesVisited)},
			[]string{"Failed Hops", strconv.Itoa(report.FailedNavigations)},
		)
	}
	rows = append(rows,
		[]string{"Started", formatTime(report.StartedAt)},
		[]string{"Duration", formatDuration(report.Duration())},
	)
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	w.writeAlert(md, report)

	if len(report.Records) > 0 {
		md.H2("Records")
		md.PlainText("")
		md.BulletList(report.Records...)
		md.PlainText("")
	}

	if len(report.Trail) > 0 {
		md.H2("Trail")
		md.PlainText("")
		md.OrderedList(report.Trail...)
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.Report) {
	switch {
	case report.TerminalState == model.StateFailed:
		md.Warningf("Session failed: %s", report.FailureReason)
	case report.Reason == model.ReasonNoLinks:
		md.Note("Session stopped early: no eligible links were left on the last page.")
	case report.Reason == model.ReasonNoRecords:
		md.Note("No DNS records were found.")
	default:
		md.Tip("Session finished normally.")
	}
	md.PlainText("")
}

// WriteList outputs a history table and the distribution of outcomes.
func (w *MarkdownWriter) WriteList(reports []*model.Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Session History")
	md.PlainText("")

	if len(reports) == 0 {
		md.PlainText("No sessions recorded.")
		md.PlainText("")
		w.writeFooter(md)
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(reports))
	outcomes := make(map[model.TerminalState]uint64)
	for i, r := range reports {
		outcomes[r.TerminalState]++
		last := r.LastLocation
		if last == "" {
			last = "-"
		}
		rows[i] = []string{
			"`" + shortID(r.ID) + "`",
			label(string(r.Kind)),
			label(string(r.TerminalState)),
			label(string(r.Reason)),
			strconv.Itoa(r.PagesVisited),
			truncateString(last, 50),
			formatTime(r.StartedAt),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Kind", "Outcome", "Reason", "Pages", "Last Page", "Started"},
		Rows:   rows,
	})
	md.PlainText("")

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Session Outcomes"),
		piechart.WithShowData(true),
	)
	for _, state := range []model.TerminalState{model.StateExhausted, model.StateCompleted, model.StateFailed} {
		if n := outcomes[state]; n > 0 {
			chart.LabelAndIntValue(label(string(state)), n)
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by trafficcloak*")
}
