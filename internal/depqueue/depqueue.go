// Package depqueue implements a dependency queue in the mold of Cargo's
// job scheduler: a graph-like structure that dynamically reveals ready
// nodes as predecessors finish and delegates the choice of which ready
// node to build next to a pluggable hint provider.
package depqueue

import (
	"sort"

	"golang.org/x/xerrors"

	"github.com/osiewicz/dice-box/internal/artifact"
)

// Provider answers which of the currently-ready candidates to build next.
// It is implemented by the package internal/hints.
type Provider interface {
	SuggestNext(candidates []artifact.Artifact) (artifact.Artifact, bool)
	Label() string
}

// Builder accumulates (key, predecessors) insertions before the queue is
// finalised. Construction is two-phase because some hint providers (the
// critical-path-aware N-Hints provider, in particular) need to inspect the
// fully assembled graph before they can answer queries.
type Builder struct {
	depMap        map[artifact.Artifact]map[artifact.Artifact]bool
	reverseDepMap map[artifact.Artifact]map[artifact.Artifact]bool
	order         []artifact.Artifact
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		depMap:        make(map[artifact.Artifact]map[artifact.Artifact]bool),
		reverseDepMap: make(map[artifact.Artifact]map[artifact.Artifact]bool),
	}
}

// Queue adds a new node and its predecessors. A repeated key is ignored
// (idempotent), matching the queue's tolerance for lowering passes that
// may revisit the same artifact while wiring up transitive edges.
func (b *Builder) Queue(key artifact.Artifact, predecessors map[artifact.Artifact]bool) {
	if _, exists := b.depMap[key]; exists {
		return
	}
	my := make(map[artifact.Artifact]bool, len(predecessors))
	for dep := range predecessors {
		my[dep] = true
		if b.reverseDepMap[dep] == nil {
			b.reverseDepMap[dep] = make(map[artifact.Artifact]bool)
		}
		b.reverseDepMap[dep][key] = true
	}
	b.depMap[key] = my
	b.order = append(b.order, key)
}

// DependenciesOf returns the (fixed) immediate predecessor set originally
// queued for key. The live Queue works on its own copy of the dependency
// map, so this set does not shrink as artifacts finish.
func (b *Builder) DependenciesOf(key artifact.Artifact) map[artifact.Artifact]bool {
	return b.depMap[key]
}

// ReverseDependenciesOf returns the immediate successors of key.
func (b *Builder) ReverseDependenciesOf(key artifact.Artifact) map[artifact.Artifact]bool {
	return b.reverseDepMap[key]
}

// Artifacts returns every artifact queued so far, in insertion order.
func (b *Builder) Artifacts() []artifact.Artifact {
	out := make([]artifact.Artifact, len(b.order))
	copy(out, b.order)
	return out
}

// Finish finalises the builder with the chosen hint provider, returning
// the live queue. The builder must not be reused afterwards.
func (b *Builder) Finish(hints Provider) *Queue {
	order := make([]artifact.Artifact, len(b.order))
	copy(order, b.order)
	sort.Slice(order, func(i, j int) bool { return artifact.Less(order[i], order[j]) })

	depMap := make(map[artifact.Artifact]map[artifact.Artifact]bool, len(b.depMap))
	for k, v := range b.depMap {
		cp := make(map[artifact.Artifact]bool, len(v))
		for dep := range v {
			cp[dep] = true
		}
		depMap[k] = cp
	}
	reverseDepMap := make(map[artifact.Artifact]map[artifact.Artifact]bool, len(b.reverseDepMap))
	for k, v := range b.reverseDepMap {
		cp := make(map[artifact.Artifact]bool, len(v))
		for s := range v {
			cp[s] = true
		}
		reverseDepMap[k] = cp
	}

	return &Queue{
		order:         order,
		depMap:        depMap,
		reverseDepMap: reverseDepMap,
		hints:         hints,
	}
}

// Queue is the live, mutable dependency queue. depMap is mutated only by
// Dequeue and Finish; reverseDepMap is immutable after construction.
type Queue struct {
	order         []artifact.Artifact
	depMap        map[artifact.Artifact]map[artifact.Artifact]bool
	reverseDepMap map[artifact.Artifact]map[artifact.Artifact]bool
	hints         Provider
}

// readySet computes the artifacts with no remaining predecessors, in the
// queue's stable key order, so that ties among candidates are broken
// identically across runs.
func (q *Queue) readySet() []artifact.Artifact {
	ready := make([]artifact.Artifact, 0)
	for _, a := range q.order {
		deps, ok := q.depMap[a]
		if !ok {
			continue // already dequeued
		}
		if len(deps) == 0 {
			ready = append(ready, a)
		}
	}
	return ready
}

// Dequeue removes and returns one ready artifact, chosen by the hint
// provider, or reports that none are ready.
func (q *Queue) Dequeue() (artifact.Artifact, bool) {
	ready := q.readySet()
	if len(ready) == 0 {
		return artifact.Artifact{}, false
	}
	chosen, ok := q.hints.SuggestNext(ready)
	if !ok {
		chosen = ready[0]
	}
	delete(q.depMap, chosen)
	return chosen, true
}

// Finish indicates that node has completed. For every successor of node,
// it removes node from that successor's remaining predecessor set,
// returning those successors whose set became empty as a direct result. It
// is a fatal error if node is not actually a recorded predecessor of one
// of its own successors; that would mean the reverse dependency map and
// the dependency map have diverged.
func (q *Queue) Finish(node artifact.Artifact) ([]artifact.Artifact, error) {
	successors := make([]artifact.Artifact, 0, len(q.reverseDepMap[node]))
	for s := range q.reverseDepMap[node] {
		successors = append(successors, s)
	}
	sort.Slice(successors, func(i, j int) bool { return artifact.Less(successors[i], successors[j]) })

	newlyReady := make([]artifact.Artifact, 0)
	for _, s := range successors {
		preds, ok := q.depMap[s]
		if !ok || !preds[node] {
			return nil, xerrors.Errorf("finish(%v): %v is not a recorded predecessor of successor %v", node, node, s)
		}
		delete(preds, node)
		if len(preds) == 0 {
			newlyReady = append(newlyReady, s)
		}
	}
	return newlyReady, nil
}

// ReverseDependencies computes, for every artifact queued in b, the set of
// artifacts that depend on it directly or transitively, including
// itself. This is the flattened reverse-dependency list that CargoPriority
// uses to weigh a node by how much of the remaining graph it unblocks, and
// that NHints uses to test ancestor/descendant relationships between
// candidates and its pre-ordered hint list. It is distinct from a single
// Builder.ReverseDependenciesOf call, which only returns one level.
func ReverseDependencies(b *Builder) map[artifact.Artifact]map[artifact.Artifact]bool {
	results := make(map[artifact.Artifact]map[artifact.Artifact]bool, len(b.order))

	var depth func(key artifact.Artifact) map[artifact.Artifact]bool
	depth = func(key artifact.Artifact) map[artifact.Artifact]bool {
		if set, ok := results[key]; ok {
			return set
		}
		set := map[artifact.Artifact]bool{key: true}
		results[key] = set // break cycles defensively; the graph is already asserted acyclic
		for s := range b.reverseDepMap[key] {
			for d := range depth(s) {
				set[d] = true
			}
		}
		results[key] = set
		return set
	}

	for _, key := range b.order {
		depth(key)
	}
	return results
}

// IsEmpty reports whether every queued artifact has been dequeued.
func (q *Queue) IsEmpty() bool {
	return len(q.depMap) == 0
}

// Len returns the number of artifacts not yet dequeued.
func (q *Queue) Len() int {
	return len(q.depMap)
}
