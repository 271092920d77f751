package hints

import (
	"github.com/osiewicz/dice-box/internal/artifact"
	"github.com/osiewicz/dice-box/internal/depqueue"
)

// cost is cargo's fixed per-kind build cost used to weigh priority.
// Codegen is free: anything that needed this package only needed its
// Metadata, which already unblocked them.
func cost(k artifact.Kind) int {
	if k == artifact.Codegen {
		return 0
	}
	return 10
}

// CargoPriority is cargo's own reverse-dependency-count heuristic: prefer
// building whatever unblocks the most remaining work, with one override.
// A ready Codegen unit is always released immediately when codegen is
// bundled with its Metadata sibling, because that codegen is the tail of
// work already effectively in flight.
type CargoPriority struct {
	priority        map[artifact.Artifact]int
	separateCodegen bool
}

// NewCargoPriority precomputes, for every artifact known to b, its
// priority: cost(a) plus the summed cost of a's transitive
// reverse-dependency closure (which includes a itself).
func NewCargoPriority(b *depqueue.Builder, separateCodegen bool) *CargoPriority {
	closures := depqueue.ReverseDependencies(b)
	priority := make(map[artifact.Artifact]int, len(closures))
	for a, closure := range closures {
		total := cost(a.Kind)
		for d := range closure {
			total += cost(d.Kind)
		}
		priority[a] = total
	}
	return &CargoPriority{priority: priority, separateCodegen: separateCodegen}
}

type cargoKey struct {
	releaseFirst bool
	priority     int
}

func (k cargoKey) less(other cargoKey) bool {
	if k.releaseFirst != other.releaseFirst {
		return other.releaseFirst
	}
	return k.priority < other.priority
}

func (c *CargoPriority) key(a artifact.Artifact) cargoKey {
	return cargoKey{
		releaseFirst: c.separateCodegen || a.Kind == artifact.Codegen,
		priority:     c.priority[a],
	}
}

func (c *CargoPriority) SuggestNext(candidates []artifact.Artifact) (artifact.Artifact, bool) {
	if len(candidates) == 0 {
		return artifact.Artifact{}, false
	}
	best := candidates[0]
	bestKey := c.key(best)
	for _, a := range candidates[1:] {
		k := c.key(a)
		if bestKey.less(k) {
			best, bestKey = a, k
		}
	}
	return best, true
}

func (c *CargoPriority) Label() string {
	if c.separateCodegen {
		return "Cargo Hints (separate codegen units)"
	}
	return "Cargo Hints"
}
