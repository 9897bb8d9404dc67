package report

import (
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/trafficcloak/internal/model"
)

// Writer writes session reports in one output format.
type Writer interface {
	// Write outputs one session report.
	Write(report *model.Report) (int, error)

	// WriteList outputs a list of session reports, newest first.
	WriteList(reports []*model.Report) (int, error)
}

// MultiWriter writes to several Writers, for example the terminal and a
// report file. It stops on the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all Writers and returns the total bytes written.
func (m *MultiWriter) Write(report *model.Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteList outputs the list to all Writers.
func (m *MultiWriter) WriteList(reports []*model.Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteList(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// label turns "depth_reached" into "Depth Reached".
func label(s string) string {
	if s == "" {
		return "-"
	}
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

const timeLayout = "2006-01-02 15:04:05 MST"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

func formatDuration(d time.Duration) string {
	return d.Round(100 * time.Millisecond).String()
}

// truncateString shortens s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// shortID keeps the first block of a UUID for list views.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
