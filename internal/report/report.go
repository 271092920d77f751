// Package report renders the per-scenario scheduling results as a
// tabular report: one row per scenario, with the hint-provider label,
// slot count and resulting makespan.
package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// Scenario is one row of the report: which hint-provider label produced
// this run, how many worker slots it used, and the resulting makespan.
type Scenario struct {
	Label      string
	NumThreads int
	Makespan   int64 // milliseconds
}

// Write renders scenarios as a table to w, one row per scenario, in the
// order given.
func Write(w io.Writer, scenarios []Scenario) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Scenario", "Threads", "Makespan"})
	table.SetAutoFormatHeaders(false)
	for _, s := range scenarios {
		table.Append([]string{s.Label, fmt.Sprintf("%d", s.NumThreads), formatMakespan(s.Makespan)})
	}
	table.Render()
}

// formatMakespan renders a millisecond duration the way a human reads a
// build time: seconds with millisecond precision.
func formatMakespan(ms int64) string {
	return fmt.Sprintf("%.3fs", float64(ms)/1000)
}
