// Package hints implements the pluggable scheduling policies consulted by
// the dependency queue whenever it has at least one ready candidate to
// choose from.
package hints

import "github.com/osiewicz/dice-box/internal/artifact"

// Provider answers which of the given ready candidates to build next. A
// false second return value means "no preference"; the queue falls back to
// the first candidate in key order.
type Provider interface {
	SuggestNext(candidates []artifact.Artifact) (artifact.Artifact, bool)
	Label() string
}

// ChooseType picks the first candidate of a given kind, or expresses no
// preference if none match.
type ChooseType struct {
	Kind artifact.Kind
}

func (c ChooseType) SuggestNext(candidates []artifact.Artifact) (artifact.Artifact, bool) {
	for _, a := range candidates {
		if a.Kind == c.Kind {
			return a, true
		}
	}
	return artifact.Artifact{}, false
}

func (c ChooseType) Label() string { return "choose " + c.Kind.String() }

// Aggregate chains providers and returns the first non-empty suggestion,
// e.g. "prefer metadata, then build-script runs, then anything".
type Aggregate struct {
	Providers []Provider
}

func (a Aggregate) SuggestNext(candidates []artifact.Artifact) (artifact.Artifact, bool) {
	for _, p := range a.Providers {
		if chosen, ok := p.SuggestNext(candidates); ok {
			return chosen, true
		}
	}
	return artifact.Artifact{}, false
}

func (a Aggregate) Label() string {
	label := "aggregate("
	for i, p := range a.Providers {
		if i > 0 {
			label += ", "
		}
		label += p.Label()
	}
	return label + ")"
}

// Replay stores a deduplicated sequence of artifacts recorded from a prior
// run. Each call returns the front element if it is present among the
// current candidates, consuming it; otherwise it expresses no preference.
// Used for regression testing and as the "optimal" baseline when seeded
// with a known-good schedule.
type Replay struct {
	order []artifact.Artifact
}

// NewReplay deduplicates artifacts, preserving first occurrence order.
func NewReplay(artifacts []artifact.Artifact) *Replay {
	seen := make(map[artifact.Artifact]bool, len(artifacts))
	order := make([]artifact.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if seen[a] {
			continue
		}
		seen[a] = true
		order = append(order, a)
	}
	return &Replay{order: order}
}

func (r *Replay) SuggestNext(candidates []artifact.Artifact) (artifact.Artifact, bool) {
	if len(r.order) == 0 {
		return artifact.Artifact{}, false
	}
	next := r.order[0]
	for _, c := range candidates {
		if c == next {
			r.order = r.order[1:]
			return c, true
		}
	}
	return artifact.Artifact{}, false
}

func (r *Replay) Label() string { return "Replay" }
