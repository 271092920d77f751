// Package timings parses the timings file produced by a prior real build
// and derives per-artifact durations from it, splitting metadata-producing
// units into their Metadata and Codegen phases.
package timings

import (
	"bufio"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/osiewicz/dice-box/internal/artifact"
)

// BuildMode mirrors cargo's unit build mode.
type BuildMode string

const (
	ModeBuild          BuildMode = "build"
	ModeRunCustomBuild BuildMode = "run-custom-build"
)

// CrateType is one of the crate-types a target may produce.
type CrateType string

const (
	CrateLib       CrateType = "lib"
	CrateProcMacro CrateType = "proc-macro"
	CrateRlib      CrateType = "rlib"
	CrateCdylib    CrateType = "cdylib"
	CrateBin       CrateType = "bin"
)

// linkingCrateTypes produce a Link artifact rather than a Metadata one.
var linkingCrateTypes = map[CrateType]bool{
	CrateBin:       true,
	CrateProcMacro: true,
	CrateRlib:      true,
	CrateCdylib:    true,
}

// Target names the build target a unit produces.
type Target struct {
	Name       string      `json:"name"`
	CrateTypes []CrateType `json:"crate_types"`
}

// IsBuildScript reports whether this target is cargo's synthetic
// build-script-build/main target.
func (t Target) IsBuildScript() bool {
	return t.Name == "build-script-build" || t.Name == "build-script-main"
}

func (t Target) producesLink() bool {
	for _, ct := range t.CrateTypes {
		if linkingCrateTypes[ct] {
			return true
		}
	}
	return false
}

// NodeType resolves the artifact kind a (mode, target) pair lowers to. It
// is a fatal error (returned, not panicked) for a RunCustomBuild unit on a
// non-script target: that shape is undefined.
func NodeType(mode BuildMode, target Target) (artifact.Kind, error) {
	switch {
	case mode == ModeBuild && target.IsBuildScript():
		return artifact.BuildScriptBuild, nil
	case mode == ModeRunCustomBuild && target.IsBuildScript():
		return artifact.BuildScriptRun, nil
	case mode == ModeBuild && target.producesLink():
		return artifact.Link, nil
	case mode == ModeBuild:
		return artifact.Metadata, nil
	default:
		return 0, xerrors.Errorf("run-custom-build on non-script target %+v is undefined", target)
	}
}

// Info is a single parsed timing record: how long one unit actually took
// during a prior real build.
type Info struct {
	Mode      BuildMode
	Duration  time.Duration
	RmetaTime *time.Duration
	PackageID string
	Target    Target
}

// rawRecord is the wire shape of one line of the NDJSON timings file.
type rawRecord struct {
	Mode      BuildMode `json:"mode"`
	Duration  float64   `json:"duration"`
	RmetaTime *float64  `json:"rmeta_time"`
	PackageID string    `json:"package_id"`
	Target    Target    `json:"target"`
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Parse reads the newline-delimited JSON timings stream. Lines that do not
// begin with '{' are ignored (human-readable log noise cargo interleaves
// with its machine-readable --timings=json output). Each record whose kind
// resolves to Metadata is split into a Metadata entry (duration ==
// rmeta_time) and a sibling Codegen entry (duration == raw duration minus
// rmeta_time).
func Parse(contents string) (map[artifact.Artifact]Info, error) {
	out := make(map[artifact.Artifact]Info)
	scanner := bufio.NewScanner(strings.NewReader(contents))
	// Timing lines can be long for unit graphs with many dependencies.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var raw rawRecord
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, xerrors.Errorf("parsing timing record: %w", err)
		}
		kind, err := NodeType(raw.Mode, raw.Target)
		if err != nil {
			return nil, err
		}
		info := Info{
			Mode:      raw.Mode,
			Duration:  secondsToDuration(raw.Duration),
			PackageID: raw.PackageID,
			Target:    raw.Target,
		}
		if kind != artifact.Metadata {
			out[artifact.Artifact{Kind: kind, PackageID: raw.PackageID}] = info
			continue
		}
		if raw.RmetaTime == nil {
			return nil, xerrors.Errorf("metadata unit %s(%s) is missing rmeta_time", raw.Target.Name, raw.PackageID)
		}
		rmeta := secondsToDuration(*raw.RmetaTime)
		codegen := info
		codegen.Duration = info.Duration - rmeta
		out[artifact.Artifact{Kind: artifact.Codegen, PackageID: raw.PackageID}] = codegen

		info.Duration = rmeta
		out[artifact.Artifact{Kind: artifact.Metadata, PackageID: raw.PackageID}] = info
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("reading timings: %w", err)
	}
	return out, nil
}

// Store answers duration(artifact) -> time.Duration, read-only after
// construction.
type Store struct {
	durations map[artifact.Artifact]time.Duration
}

// NewStore builds a Store from parsed timing records.
func NewStore(infos map[artifact.Artifact]Info) *Store {
	durations := make(map[artifact.Artifact]time.Duration, len(infos))
	for a, info := range infos {
		durations[a] = info.Duration
	}
	return &Store{durations: durations}
}

// Duration looks up the replayed duration for an artifact. A missing
// timing for an artifact the simulator schedules is a fatal error.
func (s *Store) Duration(a artifact.Artifact) (time.Duration, error) {
	d, ok := s.durations[a]
	if !ok {
		return 0, xerrors.Errorf("no timing recorded for %v", a)
	}
	return d, nil
}
