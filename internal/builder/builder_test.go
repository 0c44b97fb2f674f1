package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildtrack/internal/buildinterface"
	"buildtrack/internal/buildmap"
	"buildtrack/internal/buildtool"
	"buildtrack/internal/modulepath"
)

// fakeBuildInterface scripts Normalize/Construct/QueryChangedTargets
// responses in memory so Builder can be exercised without a real build
// tool process.
type fakeBuildInterface struct {
	targets        []buildinterface.Target
	constructed    map[string]*buildinterface.ConstructResult // keyed by target-name-joined
	lazy           *buildinterface.ConstructResult
	changedTargets map[buildinterface.Target]buildinterface.ChangedTargets
}

func (f *fakeBuildInterface) Normalize(_ context.Context, _ []string, _ buildtool.Options) ([]buildinterface.Target, error) {
	return f.targets, nil
}

func (f *fakeBuildInterface) Construct(_ context.Context, targets []buildinterface.Target, _ buildtool.Options, _ func(string) ([]byte, error)) (*buildinterface.ConstructResult, error) {
	var names []string
	for _, t := range targets {
		names = append(names, string(t))
	}
	return f.constructed[keyOf(names)], nil
}

func (f *fakeBuildInterface) ConstructLazy(_ context.Context, _ []string, _ buildtool.Options) (*buildinterface.ConstructResult, error) {
	return f.lazy, nil
}

func (f *fakeBuildInterface) QueryChangedTargets(_ context.Context, _ []buildinterface.Target, _ []string, _ buildtool.Options) (map[buildinterface.Target]buildinterface.ChangedTargets, error) {
	return f.changedTargets, nil
}

func keyOf(names []string) string {
	s := ""
	for _, n := range names {
		s += n + ","
	}
	return s
}

func testSourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("b\n"), 0o644))
	return dir
}

func readContentFrom(root string) func(string) ([]byte, error) {
	return func(rel string) ([]byte, error) { return os.ReadFile(filepath.Join(root, rel)) }
}

func TestBuilder_RestoreFromSnapshot(t *testing.T) {
	src := testSourceTree(t)
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")
	roots := []modulepath.SearchRoot{{Index: 0, Dir: src}}

	b := newBuilder(nil, src, artifactRoot, roots, nil, readContentFrom(src))

	bm, err := buildmap.New([]buildmap.Entry{
		{Artifact: "pkg/a.py", Source: "a.py"},
		{Artifact: "pkg/b.py", Source: "b.py"},
	}, buildmap.Strict)
	require.NoError(t, err)

	require.NoError(t, b.RestoreFromSnapshot(bm, roots))

	link, err := os.Readlink(filepath.Join(artifactRoot, "pkg", "a.py"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(src, "a.py"), link)

	artifactPaths, ok := b.AbsoluteArtifactPath(filepath.Join(src, "a.py"))
	require.True(t, ok)
	assert.Equal(t, []string{filepath.Join(artifactRoot, "pkg", "a.py")}, artifactPaths)

	sourcePath, ok := b.AbsoluteSourcePath(filepath.Join(artifactRoot, "pkg", "b.py"))
	require.True(t, ok)
	assert.Equal(t, filepath.Join(src, "b.py"), sourcePath)
}

func TestBuilder_RestoreFromSnapshot_StaleOnRootMismatch(t *testing.T) {
	src := testSourceTree(t)
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")
	roots := []modulepath.SearchRoot{{Index: 0, Dir: src}}
	otherRoots := []modulepath.SearchRoot{{Index: 0, Dir: "/somewhere/else"}}

	b := newBuilder(nil, src, artifactRoot, roots, nil, readContentFrom(src))

	bm, err := buildmap.New([]buildmap.Entry{{Artifact: "pkg/a.py", Source: "a.py"}}, buildmap.Strict)
	require.NoError(t, err)

	err = b.RestoreFromSnapshot(bm, otherRoots)
	require.Error(t, err)
	var stale *StaleError
	require.ErrorAs(t, err, &stale)
}

func TestBuilder_NormalizedIncrementalRequiresPriorFull(t *testing.T) {
	src := testSourceTree(t)
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")
	roots := []modulepath.SearchRoot{{Index: 0, Dir: src}}
	b := newBuilder(nil, src, artifactRoot, roots, nil, readContentFrom(src))

	_, err := b.NormalizedIncremental(context.Background(), buildtool.Options{})
	require.Error(t, err)
}

func TestBuilder_FullIncrementalThenNormalizedIncremental(t *testing.T) {
	src := testSourceTree(t)
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")
	roots := []modulepath.SearchRoot{{Index: 0, Dir: src}}

	targets := []buildinterface.Target{"//pkg:lib"}
	bm1, err := buildmap.New([]buildmap.Entry{{Artifact: "pkg/a.py", Source: "a.py"}}, buildmap.Strict)
	require.NoError(t, err)

	fake := &fakeBuildInterface{
		targets: targets,
		constructed: map[string]*buildinterface.ConstructResult{
			keyOf([]string{"//pkg:lib"}): {Map: bm1, SurvivingTargets: targets},
		},
	}
	b := newBuilder(fake, src, artifactRoot, roots, nil, readContentFrom(src))

	result, err := b.FullIncremental(context.Background(), []string{"//pkg:..."}, buildtool.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Events.Len())

	_, err = os.Lstat(filepath.Join(artifactRoot, "pkg", "a.py"))
	require.NoError(t, err)

	bm2, err := buildmap.New([]buildmap.Entry{
		{Artifact: "pkg/a.py", Source: "a.py"},
		{Artifact: "pkg/b.py", Source: "b.py"},
	}, buildmap.Strict)
	require.NoError(t, err)
	fake.constructed[keyOf([]string{"//pkg:lib"})] = &buildinterface.ConstructResult{Map: bm2, SurvivingTargets: targets}

	result2, err := b.NormalizedIncremental(context.Background(), buildtool.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result2.Events.Len())
	change, ok := result2.Events.Get("pkg/b.py")
	require.True(t, ok)
	assert.Equal(t, buildmap.Added, change.Kind)

	_, err = os.Lstat(filepath.Join(artifactRoot, "pkg", "b.py"))
	require.NoError(t, err)
}

func TestBuilder_FastIncrementalSplicesIntoPrevious(t *testing.T) {
	src := testSourceTree(t)
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")
	roots := []modulepath.SearchRoot{{Index: 0, Dir: src}}

	targets := []buildinterface.Target{"//pkg:lib"}
	initial, err := buildmap.New([]buildmap.Entry{{Artifact: "pkg/a.py", Source: "a.py"}}, buildmap.Strict)
	require.NoError(t, err)

	fake := &fakeBuildInterface{
		changedTargets: map[buildinterface.Target]buildinterface.ChangedTargets{
			"//pkg:lib": {
				Target:           "//pkg:lib",
				SourceBasePath:   "",
				ArtifactBasePath: "pkg",
				Files:            []buildinterface.ChangedFile{{ArtifactRel: "b.py", SourceRel: "b.py"}},
			},
		},
	}
	b := newBuilder(fake, src, artifactRoot, roots, nil, readContentFrom(src))
	require.NoError(t, b.RestoreFromSnapshot(initial, roots))
	b.lastTargets = targets

	result, err := b.FastIncremental(context.Background(), []string{filepath.Join(src, "b.py")}, buildtool.Options{})
	require.NoError(t, err)

	_, ok := result.BuildMap.Lookup("pkg/a.py")
	assert.True(t, ok, "previous entries must survive a splice")
	src2, ok := result.BuildMap.Lookup("pkg/b.py")
	require.True(t, ok)
	assert.Equal(t, "b.py", src2)

	_, err = os.Lstat(filepath.Join(artifactRoot, "pkg", "b.py"))
	require.NoError(t, err)
}

func TestBuilder_LazyMaterializesWorkingSet(t *testing.T) {
	src := testSourceTree(t)
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")
	roots := []modulepath.SearchRoot{{Index: 0, Dir: src}}

	bm, err := buildmap.New([]buildmap.Entry{{Artifact: "pkg/a.py", Source: "a.py"}}, buildmap.Strict)
	require.NoError(t, err)

	fake := &fakeBuildInterface{
		lazy: &buildinterface.ConstructResult{Map: bm, BuiltTargetsCount: 1},
	}
	b := newBuilder(fake, src, artifactRoot, roots, nil, readContentFrom(src))

	result, err := b.Lazy(context.Background(), []string{filepath.Join(src, "a.py")}, buildtool.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Events.Len())
	assert.Nil(t, result.SurvivingTargets, "the lazy path reports a target count, not a target list")

	_, err = os.Lstat(filepath.Join(artifactRoot, "pkg", "a.py"))
	require.NoError(t, err)

	// The lazy path never normalizes a target set; the strategies that
	// depend on one stay unavailable.
	_, err = b.NormalizedIncremental(context.Background(), buildtool.Options{})
	require.Error(t, err)
}
