package timings

import (
	"testing"
	"time"

	"github.com/osiewicz/dice-box/internal/artifact"
)

func TestParseSplitsMetadataIntoMetadataAndCodegen(t *testing.T) {
	contents := `{"mode":"build","duration":1.0,"rmeta_time":0.4,"package_id":"t","target":{"name":"t","crate_types":["lib"]}}
not json, ignored
{"mode":"build","duration":0.5,"package_id":"t","target":{"name":"t","crate_types":["bin"]}}
`
	got, err := Parse(contents)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	meta := artifact.Artifact{Kind: artifact.Metadata, PackageID: "t"}
	codegen := artifact.Artifact{Kind: artifact.Codegen, PackageID: "t"}
	link := artifact.Artifact{Kind: artifact.Link, PackageID: "t"}

	if got, want := got[meta].Duration, 400*time.Millisecond; got != want {
		t.Errorf("metadata duration = %v, want %v", got, want)
	}
	if got, want := got[codegen].Duration, 600*time.Millisecond; got != want {
		t.Errorf("codegen duration = %v, want %v", got, want)
	}
	if got, want := got[link].Duration, 500*time.Millisecond; got != want {
		t.Errorf("link duration = %v, want %v", got, want)
	}
}

func TestParseMissingRmetaTimeIsFatal(t *testing.T) {
	contents := `{"mode":"build","duration":1.0,"package_id":"t","target":{"name":"t","crate_types":["lib"]}}
`
	if _, err := Parse(contents); err == nil {
		t.Fatal("expected error for metadata unit missing rmeta_time")
	}
}

func TestParseRunCustomBuildOnNonScriptIsFatal(t *testing.T) {
	contents := `{"mode":"run-custom-build","duration":1.0,"package_id":"t","target":{"name":"t","crate_types":["lib"]}}
`
	if _, err := Parse(contents); err == nil {
		t.Fatal("expected error for run-custom-build on non-script target")
	}
}

func TestStoreDurationMissingIsFatal(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Duration(artifact.Artifact{Kind: artifact.Link, PackageID: "x"}); err == nil {
		t.Fatal("expected error for missing timing")
	}
}

func TestNodeType(t *testing.T) {
	cases := []struct {
		name   string
		mode   BuildMode
		target Target
		want   artifact.Kind
	}{
		{"build script build", ModeBuild, Target{Name: "build-script-build"}, artifact.BuildScriptBuild},
		{"build script run", ModeRunCustomBuild, Target{Name: "build-script-build"}, artifact.BuildScriptRun},
		{"link", ModeBuild, Target{Name: "t", CrateTypes: []CrateType{CrateBin}}, artifact.Link},
		{"metadata", ModeBuild, Target{Name: "t", CrateTypes: []CrateType{CrateLib}}, artifact.Metadata},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NodeType(tc.mode, tc.target)
			if err != nil {
				t.Fatalf("NodeType() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("NodeType() = %v, want %v", got, tc.want)
			}
		})
	}
}
