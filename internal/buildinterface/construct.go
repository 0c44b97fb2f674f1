package buildinterface

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"buildtrack/internal/buildmap"
	"buildtrack/internal/buildtool"
)

// sourceDatabase is the per-target source-database document the build
// tool writes for each target: a "sources" map from artifact-relative
// path to source-relative path, plus a "dependencies" field this layer
// ignores. Duplicate artifact keys within one target are first-wins.
type sourceDatabase struct {
	Sources      map[string]string `json:"sources"`
	Dependencies json.RawMessage   `json:"dependencies"`
}

// ConstructResult is the outcome of constructing a build map: the merged
// map, how many targets contributed to it, the targets whose partial map
// actually made it in (nil on the lazy path, which reports only a count),
// and, for each dropped target, the conflict that dropped it.
type ConstructResult struct {
	Map               *buildmap.BuildMap
	SurvivingTargets  []Target
	BuiltTargetsCount int
	DroppedTargets    map[string]buildmap.DroppedTarget
}

// MergedDocument renders r as the external "Merged source database"
// document: build_map, built_targets_count, dropped_targets.
func (r *ConstructResult) MergedDocument() *buildmap.MergedDocument {
	return &buildmap.MergedDocument{
		Map:               r.Map,
		BuiltTargetsCount: r.BuiltTargetsCount,
		DroppedTargets:    r.DroppedTargets,
	}
}

// loadPartial builds one target's source-database output and loads the
// resulting partial build map from disk. The build response is a JSON
// object mapping the target's source-db key to an absolute path.
func (b *BuildInterface) loadPartial(ctx context.Context, t Target, opts buildtool.Options) (*buildmap.BuildMap, error) {
	key := b.version.sourceDBKey(t)
	out, err := b.tool.Build(ctx, []string{key}, opts)
	if err != nil {
		return nil, err
	}
	var locations map[string]string
	if err := json.Unmarshal(out, &locations); err != nil {
		return nil, &JSONError{Context: "build output for " + string(t), Err: err}
	}
	path, ok := locations[key]
	if !ok {
		return nil, &JSONError{Context: "build output for " + string(t), Err: fmt.Errorf("no entry for %q", key)}
	}
	return b.loadSourceDatabase(path, string(t))
}

func (b *BuildInterface) loadSourceDatabase(path, target string) (*buildmap.BuildMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("buildinterface: read source database for %s: %w", target, err)
	}
	var db sourceDatabase
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, &JSONError{Context: "source database for " + target, Err: err}
	}
	entries := make([]buildmap.Entry, 0, len(db.Sources))
	for artifact, source := range db.Sources {
		entries = append(entries, buildmap.Entry{Artifact: artifact, Source: source})
	}
	m, err := buildmap.New(entries, buildmap.Lenient)
	if err != nil {
		return nil, err
	}
	return m.Filter(func(artifact, _ string) bool { return !isHousekeeping(artifact) }), nil
}

// Construct builds concrete targets (already resolved by Normalize) and
// merges their partial build maps in deterministic, name-sorted order. A
// target whose merge conflicts with the accumulated map is logged and
// dropped rather than failing the whole construction.
func (b *BuildInterface) Construct(ctx context.Context, targets []Target, opts buildtool.Options, readContent func(string) ([]byte, error)) (*ConstructResult, error) {
	sorted := make([]Target, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	partials := make([]*buildmap.BuildMap, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, t := range sorted {
		i, t := i, t
		g.Go(func() error {
			m, err := b.loadPartial(gctx, t, opts)
			if err != nil {
				return err
			}
			partials[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolve := buildmap.NameOrContentEqualResolver(readContent, func(artifact, kept, dropped string) {
		if b.progress != nil {
			b.progress.Verbose("merge: kept %s over %s for %s (identical content)", kept, dropped, artifact)
		}
	})

	merged, err := buildmap.New(nil, buildmap.Lenient)
	if err != nil {
		return nil, err
	}
	surviving := make([]Target, 0, len(sorted))
	owner := make(map[string]string, len(sorted)) // artifact -> target that contributed it
	dropped := make(map[string]buildmap.DroppedTarget)
	for i, t := range sorted {
		candidate, cerr := buildmap.Merge(merged, partials[i], resolve)
		if cerr != nil {
			if conflict, ok := cerr.(*buildmap.ConflictError); ok {
				dropped[string(t)] = buildmap.DroppedTarget{
					ConflictWith:        owner[conflict.Artifact],
					ArtifactPath:        conflict.Artifact,
					PreservedSourcePath: conflict.LeftSource,
					DroppedSourcePath:   conflict.RightSource,
				}
			}
			if b.progress != nil {
				b.progress.Log("dropping target %s: %v", t, cerr)
			}
			continue
		}
		merged = candidate
		surviving = append(surviving, t)
		for _, e := range partials[i].Entries() {
			owner[e.Artifact] = string(t)
		}
	}

	return &ConstructResult{
		Map:               merged,
		SurvivingTargets:  surviving,
		BuiltTargetsCount: len(surviving),
		DroppedTargets:    dropped,
	}, nil
}

// lazyBuilderArg marks a build invocation as addressing the dedicated
// lazy builder, which takes source paths rather than targets.
const lazyBuilderArg = "--sources"

// ConstructLazy invokes the dedicated lazy builder, which determines and
// materializes only the targets that own sourcePaths and writes a single
// already-merged source database for them (conflict policy identical to
// Construct's, applied tool-side). Only available under v2.
func (b *BuildInterface) ConstructLazy(ctx context.Context, sourcePaths []string, opts buildtool.Options) (*ConstructResult, error) {
	if b.version != V2 {
		return nil, fmt.Errorf("buildinterface: lazy construction requires tool version 2")
	}
	out, err := b.tool.Build(ctx, append([]string{lazyBuilderArg}, sourcePaths...), opts)
	if err != nil {
		return nil, err
	}
	var locations map[string]string
	if err := json.Unmarshal(out, &locations); err != nil {
		return nil, &JSONError{Context: "lazy build output", Err: err}
	}
	if len(locations) != 1 {
		return nil, &JSONError{Context: "lazy build output", Err: fmt.Errorf("expected one merged source database, got %d", len(locations))}
	}
	var path string
	for _, p := range locations {
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("buildinterface: read merged source database: %w", err)
	}
	doc, err := buildmap.ParseMergedDocument(data, buildmap.Lenient)
	if err != nil {
		return nil, &JSONError{Context: "merged source database", Err: err}
	}
	if b.progress != nil {
		for name, conflict := range doc.DroppedTargets {
			b.progress.Log("lazy build dropped target %s: conflicts with %s on %s", name, conflict.ConflictWith, conflict.ArtifactPath)
		}
	}
	m := doc.Map.Filter(func(artifact, _ string) bool { return !isHousekeeping(artifact) })
	return &ConstructResult{
		Map:               m,
		BuiltTargetsCount: doc.BuiltTargetsCount,
		DroppedTargets:    doc.DroppedTargets,
	}, nil
}
