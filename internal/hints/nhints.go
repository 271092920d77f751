package hints

import (
	"sort"
	"time"

	"golang.org/x/xerrors"

	"github.com/osiewicz/dice-box/internal/artifact"
	"github.com/osiewicz/dice-box/internal/depqueue"
)

// topHintCandidates bounds how many of the longest-running artifacts get a
// fixed slot in the pre-ordered hint list.
const topHintCandidates = 100

// NHints is the critical-path-aware provider: it pre-orders the top-K
// longest artifacts into a single list consistent with the DAG, then
// steers the queue toward whichever ready candidate is earliest in that
// list (or an ancestor of something in it), falling back to CargoPriority
// among ties.
type NHints struct {
	nHints              []artifact.Artifact
	inner               *CargoPriority
	reverseDependencies map[artifact.Artifact]map[artifact.Artifact]bool
	separateCodegen     bool
}

// NewNHints ranks the top-K longest artifacts, inserts each into the
// pre-ordered hint list, and verifies the result stays topologically
// consistent with the DAG. A consistency failure indicates a bug in the
// insertion logic rather than bad input, and is returned as an error.
func NewNHints(b *depqueue.Builder, durations map[artifact.Artifact]time.Duration, separateCodegen bool) (*NHints, error) {
	ranking := foldedDurations(b, durations, separateCodegen)
	reverseDeps := depqueue.ReverseDependencies(b)

	candidates := topKByDuration(b.Artifacts(), ranking, topHintCandidates)

	nHints := make([]artifact.Artifact, 0, len(candidates))
	for _, item := range candidates {
		nHints = insertIntoNHints(nHints, item, ranking, reverseDeps)
	}
	if err := assertTopologicalOrder(nHints, reverseDeps); err != nil {
		return nil, err
	}

	return &NHints{
		nHints:              nHints,
		inner:               NewCargoPriority(b, separateCodegen),
		reverseDependencies: reverseDeps,
		separateCodegen:     separateCodegen,
	}, nil
}

// assertTopologicalOrder checks that no element of nHints precedes an
// ancestor of itself that is also in the list.
func assertTopologicalOrder(nHints []artifact.Artifact, reverseDeps map[artifact.Artifact]map[artifact.Artifact]bool) error {
	for j := range nHints {
		for i := 0; i < j; i++ {
			if reverseDeps[nHints[j]][nHints[i]] {
				return xerrors.Errorf("n_hints invariant violated: %v (index %d) is an ancestor of %v (index %d) but appears after it", nHints[j], j, nHints[i], i)
			}
		}
	}
	return nil
}

// foldedDurations folds each Codegen duration into its Metadata sibling
// when codegen is not scheduled as a separate unit: under pipelining the
// pair forms one contiguous critical-path chunk, so ranking should treat
// them as one.
func foldedDurations(b *depqueue.Builder, durations map[artifact.Artifact]time.Duration, separateCodegen bool) map[artifact.Artifact]time.Duration {
	out := make(map[artifact.Artifact]time.Duration, len(durations))
	for a, d := range durations {
		out[a] = d
	}
	if separateCodegen {
		return out
	}
	for _, a := range b.Artifacts() {
		if a.Kind != artifact.Metadata {
			continue
		}
		if codegen, ok := durations[a.WithKind(artifact.Codegen)]; ok {
			out[a] = out[a] + codegen
		}
	}
	return out
}

func topKByDuration(all []artifact.Artifact, durations map[artifact.Artifact]time.Duration, k int) []artifact.Artifact {
	ordered := make([]artifact.Artifact, len(all))
	copy(ordered, all)
	sort.Slice(ordered, func(i, j int) bool { return artifact.Less(ordered[i], ordered[j]) })

	known := make([]artifact.Artifact, 0, len(ordered))
	for _, a := range ordered {
		if _, ok := durations[a]; ok {
			known = append(known, a)
		}
	}
	sort.SliceStable(known, func(i, j int) bool { return durations[known[i]] < durations[known[j]] })
	// Reverse to get descending order.
	for i, j := 0, len(known)-1; i < j; i, j = i+1, j-1 {
		known[i], known[j] = known[j], known[i]
	}
	if len(known) > k {
		known = known[:k]
	}
	return known
}

// insertIntoNHints inserts item into the pre-ordered list: after the last
// ancestor of item already in the list, before the first descendant, and
// within that window at the first position whose current occupant is
// shorter, or at the window's end.
func insertIntoNHints(nHints []artifact.Artifact, item artifact.Artifact, durations map[artifact.Artifact]time.Duration, reverseDeps map[artifact.Artifact]map[artifact.Artifact]bool) []artifact.Artifact {
	if len(nHints) == 0 {
		return []artifact.Artifact{item}
	}

	selfTime := durations[item]
	myDependants := reverseDeps[item]

	lastDependencyIdx, lastOk := -1, false
	for i := len(nHints) - 1; i >= 0; i-- {
		if reverseDeps[nHints[i]][item] {
			lastDependencyIdx, lastOk = i, true
			break
		}
	}
	firstDependantIdx, firstOk := -1, false
	for i := 0; i < len(nHints); i++ {
		if myDependants[nHints[i]] {
			firstDependantIdx, firstOk = i, true
			break
		}
	}

	insertionIndex := 0
	switch {
	case lastOk && firstOk && lastDependencyIdx+1 == firstDependantIdx:
		insertionIndex = firstDependantIdx
	default:
		windowStart := 0
		if lastOk {
			windowStart = lastDependencyIdx + 1
		}
		windowEnd := len(nHints)
		if firstOk {
			windowEnd = firstDependantIdx
		}
		insertionIndex = windowEnd
		for i := windowStart; i < windowEnd; i++ {
			if durations[nHints[i]] < selfTime {
				insertionIndex = i
				break
			}
		}
	}

	out := make([]artifact.Artifact, 0, len(nHints)+1)
	out = append(out, nHints[:insertionIndex]...)
	out = append(out, item)
	out = append(out, nHints[insertionIndex:]...)
	return out
}

func (n *NHints) SuggestNext(candidates []artifact.Artifact) (artifact.Artifact, bool) {
	if !n.separateCodegen {
		for _, c := range candidates {
			if c.Kind == artifact.Codegen {
				return c, true
			}
		}
	}

	// A candidate's position is the first index whose nHints entry is the
	// candidate itself or one of its dependants. The lowest position wins,
	// whether it was reached by a literal match or an ancestor match.
	type match struct {
		artifact artifact.Artifact
		position int
	}
	matches := make([]match, 0, len(candidates))
	for _, c := range candidates {
		myDependants := n.reverseDependencies[c]
		for i, h := range n.nHints {
			if h == c || myDependants[h] {
				matches = append(matches, match{artifact: c, position: i})
				break
			}
		}
	}
	if len(matches) == 0 {
		return n.inner.SuggestNext(candidates)
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.position < best.position {
			best = m
		}
	}

	tied := make([]artifact.Artifact, 0, len(matches))
	for _, m := range matches {
		if m.position == best.position {
			tied = append(tied, m.artifact)
		}
	}
	return n.inner.SuggestNext(tied)
}

func (n *NHints) Label() string { return "N-Hints" }
