// Package report renders an end-of-run summary for a CEP run: the
// counters, recall, and latency percentiles named as collaborator
// concerns in spec.md §6. Grounded on the teacher's combination of
// tablewriter + fatih/color for terminal reporting
// (datalog/executor/table_formatter.go, datalog/annotations/output.go).
package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/corvidlabs/bikecep/internal/driver"
)

// Summary bundles everything the report needs about a completed run.
type Summary struct {
	Counters       driver.Counters
	Recall         float64 // negative means "not computed"
	LatencySamples []float64
}

// Writer renders a Summary as a colored counters table plus a recall and
// latency line, following the teacher's auto-detected-color-support idiom.
type Writer struct {
	w        io.Writer
	useColor bool
}

// NewWriter constructs a Writer over w, auto-detecting color support the
// way datalog/annotations.NewOutputFormatter does.
func NewWriter(w io.Writer) *Writer {
	if w == nil {
		w = os.Stdout
	}
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = f == os.Stdout || f == os.Stderr
	}
	return &Writer{w: w, useColor: useColor}
}

// Render writes the full summary to the Writer's underlying io.Writer.
func (rw *Writer) Render(s Summary) {
	table := tablewriter.NewTable(rw.w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment([]tw.Align{tw.AlignNone, tw.AlignNone}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"counter", "value"})
	table.Append([]string{"ingested", fmt.Sprintf("%d", s.Counters.Ingested)})
	table.Append([]string{"forwarded", fmt.Sprintf("%d", s.Counters.Forwarded)})
	table.Append([]string{"dropped", fmt.Sprintf("%d", s.Counters.Dropped)})
	table.Append([]string{"matches", fmt.Sprintf("%d", s.Counters.Matches)})
	table.Append([]string{"evictions", fmt.Sprintf("%d", s.Counters.Evictions)})
	table.Render()

	if s.Recall >= 0 {
		fmt.Fprintf(rw.w, "recall: %s\n", rw.colorizeRecall(s.Recall))
	}

	p50, p90, p99 := percentiles(s.LatencySamples)
	fmt.Fprintf(rw.w, "latency p50=%.2fms p90=%.2fms p99=%.2fms\n", p50, p90, p99)
}

func (rw *Writer) colorizeRecall(recall float64) string {
	text := fmt.Sprintf("%.3f", recall)
	if !rw.useColor {
		return text
	}
	switch {
	case recall >= 0.95:
		return color.GreenString(text)
	case recall >= 0.8:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

// percentiles returns p50/p90/p99 of samples. samples is not mutated; a
// sorted copy is used internally. Empty input returns all zeros.
func percentiles(samples []float64) (p50, p90, p99 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return pick(sorted, 0.50), pick(sorted, 0.90), pick(sorted, 0.99)
}

func pick(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
