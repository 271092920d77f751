// Command dicebox simulates how long a Cargo-style build would take under
// different scheduling policies, given a captured timings log and unit
// graph from a previous build.
package main

import (
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/spf13/cobra"

	"github.com/osiewicz/dice-box/internal/artifact"
	"github.com/osiewicz/dice-box/internal/depqueue"
	"github.com/osiewicz/dice-box/internal/hints"
	"github.com/osiewicz/dice-box/internal/report"
	"github.com/osiewicz/dice-box/internal/runner"
	"github.com/osiewicz/dice-box/internal/timings"
	"github.com/osiewicz/dice-box/internal/unitgraph"
	"github.com/osiewicz/dice-box/internal/visualize"
)

var (
	numThreads      int
	separateCodegen bool
	emitTimings     bool

	cmdRoot = &cobra.Command{
		Use:   "dicebox <timings-file> <unit-graph-file>",
		Short: "Replay a captured Cargo build under several scheduling policies",
		Long: `dicebox reads a cargo --timings JSON log and the unit graph that
produced it, then replays the same set of compilation units under a handful
of dependency-queue hint policies, reporting the makespan each one would
have produced.`,
		Args: cobra.ExactArgs(2),
		RunE: run,
	}
)

func init() {
	cmdRoot.Flags().IntVarP(&numThreads, "num-threads", "n", 10, "number of worker slots to simulate")
	cmdRoot.Flags().BoolVar(&separateCodegen, "separate-codegen", false, "schedule codegen units independently of their metadata sibling for the N-Hints scenario")
	cmdRoot.Flags().BoolVarP(&emitTimings, "timings", "t", false, "write an HTML timing chart per scenario alongside the report")
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		log.Fatal(err)
	}
}

// scenario pairs a hint provider's label with the queue it drives. The
// report always compares the same three configurations: Cargo hints
// bundling codegen into metadata, Cargo hints scheduling codegen
// separately, and N-Hints. --separate-codegen selects which of those two
// modes the N-Hints scenario runs under; the Cargo rows are fixed so the
// comparison stays three-way.
type scenario struct {
	label string
	queue *depqueue.Queue
}

func run(cmd *cobra.Command, args []string) error {
	timingsPath, unitGraphPath := args[0], args[1]

	timingsRaw, err := os.ReadFile(timingsPath)
	if err != nil {
		return xerrors.Errorf("reading timings file: %w", err)
	}
	unitGraphRaw, err := os.ReadFile(unitGraphPath)
	if err != nil {
		return xerrors.Errorf("reading unit graph file: %w", err)
	}

	infos, err := timings.Parse(string(timingsRaw))
	if err != nil {
		return xerrors.Errorf("parsing timings: %w", err)
	}
	store := timings.NewStore(infos)

	graph, err := unitgraph.ParseGraph(unitGraphRaw)
	if err != nil {
		return err
	}
	units, err := unitgraph.Lower(graph)
	if err != nil {
		return err
	}

	newBuilder := func() *depqueue.Builder {
		b := depqueue.NewBuilder()
		for _, u := range units {
			b.Queue(u.Artifact, u.Dependencies)
		}
		return b
	}

	artifactDurations, err := collectDurations(units, store)
	if err != nil {
		return err
	}

	cargoBundledBuilder := newBuilder()
	cargoBundledProvider := hints.NewCargoPriority(cargoBundledBuilder, false)
	cargoBundled := scenario{
		label: cargoBundledProvider.Label(),
		queue: cargoBundledBuilder.Finish(cargoBundledProvider),
	}

	cargoSeparateBuilder := newBuilder()
	cargoSeparateProvider := hints.NewCargoPriority(cargoSeparateBuilder, true)
	cargoSeparate := scenario{
		label: cargoSeparateProvider.Label(),
		queue: cargoSeparateBuilder.Finish(cargoSeparateProvider),
	}

	nHintsBuilder := newBuilder()
	nHintsProvider, err := hints.NewNHints(nHintsBuilder, artifactDurations, separateCodegen)
	if err != nil {
		return xerrors.Errorf("building N-Hints provider: %w", err)
	}
	nHints := scenario{
		label: nHintsProvider.Label(),
		queue: nHintsBuilder.Finish(nHintsProvider),
	}

	scenarios := []scenario{cargoBundled, cargoSeparate, nHints}
	results := make([]report.Scenario, len(scenarios))
	traces := make([][]runner.TraceEntry, len(scenarios))

	var g errgroup.Group
	for i, s := range scenarios {
		i, s := i, s
		g.Go(func() error {
			makespan, trace, err := runner.New(s.queue, store, numThreads).Calculate()
			if err != nil {
				return xerrors.Errorf("scenario %q: %w", s.label, err)
			}
			results[i] = report.Scenario{Label: s.label, NumThreads: numThreads, Makespan: makespan}
			traces[i] = trace
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report.Write(cmd.OutOrStdout(), results)

	if emitTimings {
		generatedAt := time.Now()
		for i, s := range scenarios {
			if err := writeChart(s.label, results[i].Makespan, traces[i], store, generatedAt); err != nil {
				return xerrors.Errorf("writing timing chart for %q: %w", s.label, err)
			}
		}
	}

	return nil
}

// collectDurations resolves every lowered artifact's recorded duration up
// front, so the N-Hints provider can rank by critical-path weight without
// querying the store artifact by artifact.
func collectDurations(units []unitgraph.ArtifactUnit, store *timings.Store) (map[artifact.Artifact]time.Duration, error) {
	out := make(map[artifact.Artifact]time.Duration, len(units))
	for _, u := range units {
		d, err := store.Duration(u.Artifact)
		if err != nil {
			return nil, xerrors.Errorf("artifact %v has no recorded timing: %w", u.Artifact, err)
		}
		out[u.Artifact] = d
	}
	return out, nil
}

func writeChart(label string, makespan int64, trace []runner.TraceEntry, store *timings.Store, generatedAt time.Time) error {
	suffix := slugify(label)
	f, err := os.Create(visualize.Filename(suffix, generatedAt))
	if err != nil {
		return err
	}
	defer f.Close()
	return visualize.Write(f, label, makespan, trace, store, generatedAt)
}

func slugify(label string) string {
	out := make([]rune, 0, len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
		case r == ' ' || r == '-' || r == '(' || r == ')':
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
