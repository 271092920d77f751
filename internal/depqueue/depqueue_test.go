package depqueue

import (
	"testing"

	"github.com/osiewicz/dice-box/internal/artifact"
)

type noPreference struct{}

func (noPreference) SuggestNext([]artifact.Artifact) (artifact.Artifact, bool) {
	return artifact.Artifact{}, false
}
func (noPreference) Label() string { return "no preference" }

func a(kind artifact.Kind, pkg string) artifact.Artifact {
	return artifact.Artifact{Kind: kind, PackageID: pkg}
}

func TestDequeuePicksFirstInKeyOrderWithoutHint(t *testing.T) {
	b := NewBuilder()
	b.Queue(a(artifact.Link, "z"), nil)
	b.Queue(a(artifact.Link, "a"), nil)
	q := b.Finish(noPreference{})

	got, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected a ready artifact")
	}
	if want := a(artifact.Link, "a"); got != want {
		t.Errorf("Dequeue() = %v, want %v", got, want)
	}
}

func TestFinishRevealsSuccessors(t *testing.T) {
	b := NewBuilder()
	dep := a(artifact.Metadata, "p")
	succ := a(artifact.Codegen, "p")
	b.Queue(dep, nil)
	b.Queue(succ, map[artifact.Artifact]bool{dep: true})
	q := b.Finish(noPreference{})

	got, ok := q.Dequeue()
	if !ok || got != dep {
		t.Fatalf("Dequeue() = %v, %v, want %v, true", got, ok, dep)
	}
	newlyReady, err := q.Finish(dep)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if len(newlyReady) != 1 || newlyReady[0] != succ {
		t.Fatalf("Finish() newlyReady = %v, want [%v]", newlyReady, succ)
	}
	if q.IsEmpty() {
		t.Fatal("queue should still contain the successor")
	}
}

func TestQueueIsEmptyAndLen(t *testing.T) {
	b := NewBuilder()
	b.Queue(a(artifact.Link, "x"), nil)
	q := b.Finish(noPreference{})
	if q.IsEmpty() {
		t.Fatal("queue should not be empty before dequeuing")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("expected to dequeue the only artifact")
	}
	if !q.IsEmpty() {
		t.Fatal("queue should be empty after dequeuing its only artifact")
	}
}

func TestRepeatedQueueKeyIsIgnored(t *testing.T) {
	b := NewBuilder()
	key := a(artifact.Link, "x")
	b.Queue(key, map[artifact.Artifact]bool{a(artifact.Metadata, "x"): true})
	b.Queue(key, nil) // should be ignored, not overwrite predecessors
	q := b.Finish(noPreference{})
	if _, ok := q.Dequeue(); ok {
		t.Fatal("artifact should not be ready: first Queue() call's predecessor must survive")
	}
}

func TestFinishErrorsOnUnrecordedPredecessor(t *testing.T) {
	b := NewBuilder()
	node := a(artifact.Metadata, "p")
	other := a(artifact.Codegen, "p")
	b.Queue(node, nil)
	b.Queue(other, nil) // does NOT depend on node
	q := b.Finish(noPreference{})
	// Manually corrupt reverseDepMap to simulate divergence and assert Finish catches it.
	q.reverseDepMap[node] = map[artifact.Artifact]bool{other: true}
	if _, err := q.Finish(node); err == nil {
		t.Fatal("expected error when successor does not record node as a predecessor")
	}
}
