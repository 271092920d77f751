// Package visualize renders the optional HTML timing chart. The
// simulator's own output is the makespan and trace; the chart is a
// downstream consumer of that trace, one self-contained file per
// scenario.
package visualize

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/osiewicz/dice-box/internal/runner"
	"github.com/osiewicz/dice-box/internal/timings"
)

// Bar is one rendered row of the chart: an artifact's label, its start
// offset and duration in seconds.
type Bar struct {
	Label    string
	Start    float64
	Duration float64
}

// chartData is what the template renders.
type chartData struct {
	Label       string
	Makespan    float64
	GeneratedAt string
	Bars        []Bar
}

var chartTmpl = template.Must(template.New("").Funcs(template.FuncMap{
	"percent": func(v, total float64) string {
		if total == 0 {
			return "0%"
		}
		return fmt.Sprintf("%.2f%%", 100*v/total)
	},
}).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>dice-box timing chart: {{ .Label }}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
.row { display: flex; align-items: center; margin: 2px 0; }
.name { width: 220px; font-size: 12px; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
.track { flex: 1; background: #eee; position: relative; height: 16px; }
.bar { position: absolute; top: 0; bottom: 0; background: #3b6fb6; }
</style>
</head>
<body>
<h1>{{ .Label }}</h1>
<p>Generated {{ .GeneratedAt }}. Makespan: {{ printf "%.3f" .Makespan }}s.</p>
{{ range .Bars }}
<div class="row">
  <div class="name">{{ .Label }}</div>
  <div class="track">
    <div class="bar" style="left: {{ percent .Start $.Makespan }}; width: {{ percent .Duration $.Makespan }};"></div>
  </div>
</div>
{{ end }}
</body>
</html>
`))

// Write renders an HTML timing chart for one scenario's trace to w.
// generatedAt is passed in rather than computed here so repeated renders
// of the same trace stay byte-identical.
func Write(w io.Writer, label string, makespanMS int64, trace []runner.TraceEntry, store *timings.Store, generatedAt time.Time) error {
	data := chartData{
		Label:       label,
		Makespan:    float64(makespanMS) / 1000,
		GeneratedAt: generatedAt.Format(time.RFC3339),
		Bars:        make([]Bar, 0, len(trace)),
	}
	for _, entry := range trace {
		d, err := store.Duration(entry.Artifact)
		if err != nil {
			return err
		}
		data.Bars = append(data.Bars, Bar{
			Label:    entry.Artifact.String(),
			Start:    float64(entry.StartTime) / 1000,
			Duration: d.Seconds(),
		})
	}
	return chartTmpl.Execute(w, data)
}

// Filename produces the cargo-timing-<suffix>-<timestamp>.html name the
// chart files are written under.
func Filename(suffix string, generatedAt time.Time) string {
	timestamp := generatedAt.Format("20060102T150405")
	return fmt.Sprintf("cargo-timing-%s-%s.html", suffix, timestamp)
}
