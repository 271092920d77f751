// Package unitgraph lowers a compiler driver's parsed unit graph into the
// multi-edge artifact DAG the rest of the simulator schedules over,
// inserting the pipelining edges that let a downstream unit start once its
// dependency's interface (not its object code) is ready.
package unitgraph

import (
	"encoding/json"
	"sort"

	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/osiewicz/dice-box/internal/artifact"
	"github.com/osiewicz/dice-box/internal/timings"
)

// Dependency references another unit by its 0-based index in the
// enclosing graph's Units slice.
type Dependency struct {
	Index int `json:"index"`
}

// Unit is one compilation step as reported by the driver, before lowering.
type Unit struct {
	PackageID    string            `json:"pkg_id"`
	Target       timings.Target    `json:"target"`
	Mode         timings.BuildMode `json:"mode"`
	Dependencies []Dependency      `json:"dependencies"`
}

// Graph is the parsed unit-graph document.
type Graph struct {
	Units []Unit `json:"units"`
}

// ParseGraph decodes a unit-graph JSON document.
func ParseGraph(contents []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(contents, &g); err != nil {
		return Graph{}, xerrors.Errorf("parsing unit graph: %w", err)
	}
	return g, nil
}

// ArtifactUnit is one lowered node plus its (possibly rewritten)
// predecessor set, ready for insertion into the dependency queue.
type ArtifactUnit struct {
	Artifact     artifact.Artifact
	Dependencies map[artifact.Artifact]bool
}

// Lower converts the parsed unit graph to the artifact DAG: it resolves
// each unit's kind, synthesises the Codegen sibling of every Metadata
// artifact, rewrites Link/BuildScriptBuild predecessors that only expose
// Metadata to depend on Codegen instead, and recursively extends Link
// nodes to depend on the full transitive closure of codegen producers.
// The result is asserted acyclic before it is returned.
func Lower(g Graph) ([]ArtifactUnit, error) {
	unitArtifact := func(u Unit) (artifact.Artifact, error) {
		kind, err := timings.NodeType(u.Mode, u.Target)
		if err != nil {
			return artifact.Artifact{}, err
		}
		return artifact.Artifact{Kind: kind, PackageID: u.PackageID}, nil
	}

	deps := make(map[artifact.Artifact]map[artifact.Artifact]bool)
	order := make([]artifact.Artifact, 0, len(g.Units))

	insert := func(key artifact.Artifact, predecessors map[artifact.Artifact]bool) error {
		if _, exists := deps[key]; exists {
			return xerrors.Errorf("duplicate artifact %v in lowered unit graph", key)
		}
		deps[key] = predecessors
		order = append(order, key)
		return nil
	}

	for _, u := range g.Units {
		self, err := unitArtifact(u)
		if err != nil {
			return nil, err
		}

		predecessors := make(map[artifact.Artifact]bool, len(u.Dependencies))
		for _, d := range u.Dependencies {
			if d.Index < 0 || d.Index >= len(g.Units) {
				return nil, xerrors.Errorf("unit %v references out-of-range dependency index %d", self, d.Index)
			}
			dep, err := unitArtifact(g.Units[d.Index])
			if err != nil {
				return nil, err
			}
			// A final link/script build must wait for full object code,
			// not just the interface.
			if (self.Kind == artifact.Link || self.Kind == artifact.BuildScriptBuild) && dep.Kind == artifact.Metadata {
				dep = dep.WithKind(artifact.Codegen)
			}
			if dep == self {
				return nil, xerrors.Errorf("artifact %v depends on itself", self)
			}
			predecessors[dep] = true
		}

		if self.Kind == artifact.Metadata {
			codegen := self.WithKind(artifact.Codegen)
			if err := insert(codegen, map[artifact.Artifact]bool{self: true}); err != nil {
				return nil, err
			}
		}
		if err := insert(self, predecessors); err != nil {
			return nil, err
		}
	}

	extendLinkClosure(deps, order)

	if err := assertAcyclic(deps, order); err != nil {
		return nil, err
	}

	units := make([]ArtifactUnit, 0, len(order))
	for _, a := range order {
		units = append(units, ArtifactUnit{Artifact: a, Dependencies: deps[a]})
	}
	return units, nil
}

// extendLinkClosure walks every Link node's predecessors looking for
// Metadata artifacts and adds their Codegen siblings as direct
// predecessors of the Link node too, recursing through any further
// Metadata predecessors those expose. This ensures a Link node sees the
// transitive closure of codegen dependencies even when an intermediate
// library only exposed Metadata to its own consumers.
func extendLinkClosure(deps map[artifact.Artifact]map[artifact.Artifact]bool, order []artifact.Artifact) {
	var recurse func(parent, child artifact.Artifact, visited map[artifact.Artifact]bool)
	recurse = func(parent, child artifact.Artifact, visited map[artifact.Artifact]bool) {
		for dep := range deps[child] {
			if dep.Kind != artifact.Metadata {
				continue
			}
			deps[parent][dep.WithKind(artifact.Codegen)] = true
			if !visited[dep] {
				visited[dep] = true
				recurse(parent, dep, visited)
			}
		}
	}

	links := make([]artifact.Artifact, 0)
	for _, a := range order {
		if a.Kind == artifact.Link {
			links = append(links, a)
		}
	}
	sort.Slice(links, func(i, j int) bool { return artifact.Less(links[i], links[j]) })

	for _, parent := range links {
		directDeps := make([]artifact.Artifact, 0, len(deps[parent]))
		for dep := range deps[parent] {
			directDeps = append(directDeps, dep)
		}
		sort.Slice(directDeps, func(i, j int) bool { return artifact.Less(directDeps[i], directDeps[j]) })
		for _, dep := range directDeps {
			recurse(parent, dep, map[artifact.Artifact]bool{})
		}
	}
}

// assertAcyclic builds a scratch directed graph mirroring the lowered
// edges and runs a topological sort over it; topo.Sort reports any cycle
// as an Unorderable error.
func assertAcyclic(deps map[artifact.Artifact]map[artifact.Artifact]bool, order []artifact.Artifact) error {
	g := simple.NewDirectedGraph()
	ids := make(map[artifact.Artifact]int64, len(order))
	for i, a := range order {
		id := int64(i)
		ids[a] = id
		g.AddNode(simple.Node(id))
	}
	for _, a := range order {
		for dep := range deps[a] {
			// dep -> a: dep must finish before a can start.
			g.SetEdge(g.NewEdge(simple.Node(ids[dep]), simple.Node(ids[a])))
		}
	}
	if _, err := topo.Sort(g); err != nil {
		return xerrors.Errorf("artifact graph has a cycle: %w", err)
	}
	return nil
}
