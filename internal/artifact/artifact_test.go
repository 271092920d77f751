package artifact

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLessOrdersByKindThenPackage(t *testing.T) {
	in := []Artifact{
		{Kind: Link, PackageID: "b"},
		{Kind: Metadata, PackageID: "z"},
		{Kind: Metadata, PackageID: "a"},
		{Kind: BuildScriptBuild, PackageID: "a"},
	}
	want := []Artifact{
		{Kind: BuildScriptBuild, PackageID: "a"},
		{Kind: Metadata, PackageID: "a"},
		{Kind: Metadata, PackageID: "z"},
		{Kind: Link, PackageID: "b"},
	}
	sort.Slice(in, func(i, j int) bool { return Less(in[i], in[j]) })
	if diff := cmp.Diff(want, in); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestWithKindPreservesPackage(t *testing.T) {
	a := Artifact{Kind: Metadata, PackageID: "serde"}
	got := a.WithKind(Codegen)
	want := Artifact{Kind: Codegen, PackageID: "serde"}
	if got != want {
		t.Fatalf("WithKind() = %v, want %v", got, want)
	}
}

func TestCompare(t *testing.T) {
	a := Artifact{Kind: Metadata, PackageID: "a"}
	b := Artifact{Kind: Metadata, PackageID: "b"}
	if Compare(a, a) != 0 {
		t.Fatalf("Compare(a, a) should be 0")
	}
	if Compare(a, b) != -1 {
		t.Fatalf("Compare(a, b) should be -1")
	}
	if Compare(b, a) != 1 {
		t.Fatalf("Compare(b, a) should be 1")
	}
}
