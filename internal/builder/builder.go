// Package builder drives the incremental build-map construction
// strategies (full, normalized, fast, lazy) and the artifact tree they
// keep in sync, on top of buildinterface and artifacts.
package builder

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"buildtrack/internal/artifacts"
	"buildtrack/internal/buildinterface"
	"buildtrack/internal/buildmap"
	"buildtrack/internal/buildtool"
	"buildtrack/internal/modulepath"
	"buildtrack/internal/progress"
)

// StaleError reports a saved build map that can't be trusted against the
// builder's current search-root configuration.
type StaleError struct {
	Reason string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("builder: stale snapshot: %s", e.Reason)
}

// buildInterface is the subset of *buildinterface.BuildInterface the
// builder depends on, narrowed to an interface so tests can substitute a
// fake instead of driving a real build tool.
type buildInterface interface {
	Normalize(ctx context.Context, patterns []string, opts buildtool.Options) ([]buildinterface.Target, error)
	Construct(ctx context.Context, targets []buildinterface.Target, opts buildtool.Options, readContent func(string) ([]byte, error)) (*buildinterface.ConstructResult, error)
	ConstructLazy(ctx context.Context, sourcePaths []string, opts buildtool.Options) (*buildinterface.ConstructResult, error)
	QueryChangedTargets(ctx context.Context, targets []buildinterface.Target, changedSourcePaths []string, opts buildtool.Options) (map[buildinterface.Target]buildinterface.ChangedTargets, error)
}

// Result is the outcome shared by every incremental variant and Lazy:
// the new build map, the targets that survived construction, and the
// artifact-path events needed to bring the artifact tree up to date.
type Result struct {
	BuildMap         *buildmap.BuildMap
	SurvivingTargets []buildinterface.Target
	Events           *buildmap.Difference
}

// Builder owns the rolling state (last-normalized targets, last-built map)
// an incremental session needs to pick the cheapest applicable variant.
type Builder struct {
	bi           buildInterface
	sourceRoot   string
	artifactRoot string
	searchRoots  []modulepath.SearchRoot
	progress     *progress.Reporter
	readContent  func(string) ([]byte, error)

	patterns    []string
	lastTargets []buildinterface.Target
	lastMap     *buildmap.BuildMap
	lastIndexed *buildmap.Indexed
}

// New creates a Builder. readContent backs the merge resolver's
// content-equality fallback; pass os.ReadFile rooted appropriately, or a
// fake in tests.
func New(bi *buildinterface.BuildInterface, sourceRoot, artifactRoot string, searchRoots []modulepath.SearchRoot, prog *progress.Reporter, readContent func(string) ([]byte, error)) *Builder {
	return newBuilder(bi, sourceRoot, artifactRoot, searchRoots, prog, readContent)
}

func newBuilder(bi buildInterface, sourceRoot, artifactRoot string, searchRoots []modulepath.SearchRoot, prog *progress.Reporter, readContent func(string) ([]byte, error)) *Builder {
	return &Builder{
		bi:           bi,
		sourceRoot:   sourceRoot,
		artifactRoot: artifactRoot,
		searchRoots:  searchRoots,
		progress:     prog,
		readContent:  readContent,
	}
}

// emptyMap is the baseline for the very first build in a session.
func emptyMap() *buildmap.BuildMap {
	m, _ := buildmap.New(nil, buildmap.Lenient)
	return m
}

func (b *Builder) previous() *buildmap.BuildMap {
	if b.lastMap == nil {
		return emptyMap()
	}
	return b.lastMap
}

// commit stores the newly constructed map/targets as the builder's rolling
// state, re-indexes it, and applies the diff against the prior map to the
// artifact tree.
func (b *Builder) commit(cr *buildinterface.ConstructResult) (*Result, error) {
	diff := buildmap.Diff(b.previous(), cr.Map)
	if err := artifacts.Update(b.sourceRoot, b.artifactRoot, diff, b.progress); err != nil {
		return nil, err
	}
	b.lastMap = cr.Map
	b.lastTargets = cr.SurvivingTargets
	b.lastIndexed = buildmap.Index(cr.Map)
	return &Result{BuildMap: cr.Map, SurvivingTargets: cr.SurvivingTargets, Events: diff}, nil
}

// FullIncremental re-normalizes patterns, reconstructs the build map from
// scratch, diffs it against the prior map, and applies the result. Use
// when the target set itself may have changed.
func (b *Builder) FullIncremental(ctx context.Context, patterns []string, opts buildtool.Options) (*Result, error) {
	targets, err := b.bi.Normalize(ctx, patterns, opts)
	if err != nil {
		return nil, err
	}
	b.patterns = patterns
	cr, err := b.bi.Construct(ctx, targets, opts, b.readContent)
	if err != nil {
		return nil, err
	}
	return b.commit(cr)
}

// Lazy constructs a build map for just the targets owning sourcePaths
// (the caller's working set) via the dedicated lazy builder, diffs it
// against the prior map, and applies the result. The target set is never
// normalized on this path, so NormalizedIncremental and FastIncremental
// are unavailable until a FullIncremental establishes one.
func (b *Builder) Lazy(ctx context.Context, sourcePaths []string, opts buildtool.Options) (*Result, error) {
	cr, err := b.bi.ConstructLazy(ctx, sourcePaths, opts)
	if err != nil {
		return nil, err
	}
	return b.commit(cr)
}

// NormalizedIncremental skips re-normalization and reconstructs from the
// last-known target set. Use when the target set is known unchanged.
func (b *Builder) NormalizedIncremental(ctx context.Context, opts buildtool.Options) (*Result, error) {
	if b.lastTargets == nil {
		return nil, fmt.Errorf("builder: normalized incremental requires a prior full incremental build")
	}
	cr, err := b.bi.Construct(ctx, b.lastTargets, opts, b.readContent)
	if err != nil {
		return nil, err
	}
	return b.commit(cr)
}

// FastIncremental skips both re-normalization and re-build: it asks the
// build tool which targets own changedSourcePaths, splices their partial
// maps into the previous map, and applies the resulting diff. Use only
// when the target set is unchanged and none of changedSourcePaths is a
// recipe/build file that could affect generated code.
func (b *Builder) FastIncremental(ctx context.Context, changedSourcePaths []string, opts buildtool.Options) (*Result, error) {
	if b.lastTargets == nil {
		return nil, fmt.Errorf("builder: fast incremental requires a prior full incremental build")
	}
	changed, err := b.bi.QueryChangedTargets(ctx, b.lastTargets, changedSourcePaths, opts)
	if err != nil {
		return nil, err
	}

	spliced := b.previous()
	resolve := buildmap.NameOrContentEqualResolver(b.readContent, func(artifact, kept, dropped string) {
		if b.progress != nil {
			b.progress.Verbose("fast incremental: kept %s over %s for %s", kept, dropped, artifact)
		}
	})
	names := make([]buildinterface.Target, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, name := range names {
		ct := changed[name]
		entries := make([]buildmap.Entry, 0, len(ct.Files))
		for _, f := range ct.Files {
			entries = append(entries, buildmap.Entry{
				Artifact: filepath.Join(ct.ArtifactBasePath, f.ArtifactRel),
				Source:   filepath.Join(ct.SourceBasePath, f.SourceRel),
			})
		}
		partial, err := buildmap.New(entries, buildmap.Lenient)
		if err != nil {
			return nil, err
		}
		spliced, err = buildmap.Merge(spliced, partial, resolve)
		if err != nil {
			return nil, err
		}
	}

	diff := buildmap.Diff(b.previous(), spliced)
	if err := artifacts.Update(b.sourceRoot, b.artifactRoot, diff, b.progress); err != nil {
		return nil, err
	}
	b.lastMap = spliced
	b.lastIndexed = buildmap.Index(spliced)
	return &Result{BuildMap: spliced, SurvivingTargets: b.lastTargets, Events: diff}, nil
}

// RestoreFromSnapshot materializes the artifact root from a pre-existing
// build map without consulting the external tool, used on cold start from
// a saved-state file. savedRoots is the search-root configuration the
// snapshot was produced against; it must match the builder's own
// configuration or Restore fails with StaleError.
func (b *Builder) RestoreFromSnapshot(bm *buildmap.BuildMap, savedRoots []modulepath.SearchRoot) error {
	if !sameSearchRoots(b.searchRoots, savedRoots) {
		return &StaleError{Reason: "search-root configuration does not match the one the snapshot was built against"}
	}
	if err := artifacts.Populate(b.sourceRoot, b.artifactRoot, bm, b.progress); err != nil {
		return err
	}
	b.lastMap = bm
	b.lastIndexed = buildmap.Index(bm)
	return nil
}

func sameSearchRoots(a, b []modulepath.SearchRoot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Index != b[i].Index || a[i].Dir != b[i].Dir {
			return false
		}
	}
	return true
}

// AbsoluteArtifactPath returns the absolute artifact-root paths sourcePath
// (absolute, under sourceRoot) materializes to, if any entry in the
// current build map names it as a source.
func (b *Builder) AbsoluteArtifactPath(sourcePath string) ([]string, bool) {
	if b.lastIndexed == nil {
		return nil, false
	}
	rel, err := filepath.Rel(b.sourceRoot, sourcePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	artifactRels := b.lastIndexed.LookupArtifact(rel)
	if len(artifactRels) == 0 {
		return nil, false
	}
	out := make([]string, len(artifactRels))
	for i, a := range artifactRels {
		out[i] = filepath.Join(b.artifactRoot, a)
	}
	return out, true
}

// AbsoluteSourcePath returns the absolute source-root path artifactPath
// (absolute, under artifactRoot) resolves from, if tracked by the current
// build map.
func (b *Builder) AbsoluteSourcePath(artifactPath string) (string, bool) {
	if b.lastIndexed == nil {
		return "", false
	}
	rel, err := filepath.Rel(b.artifactRoot, artifactPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	source, ok := b.lastIndexed.LookupSource(rel)
	if !ok {
		return "", false
	}
	return filepath.Join(b.sourceRoot, source), true
}
