package buildmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StrictRejectsDuplicate(t *testing.T) {
	_, err := New([]Entry{
		{Artifact: "a.py", Source: "src/a.py"},
		{Artifact: "a.py", Source: "src/b.py"},
	}, Strict)
	require.Error(t, err)
	var dupErr *DuplicateKeyError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "a.py", dupErr.Artifact)
}

func TestNew_LenientFirstWins(t *testing.T) {
	m, err := New([]Entry{
		{Artifact: "a.py", Source: "src/a.py"},
		{Artifact: "a.py", Source: "src/b.py"},
	}, Lenient)
	require.NoError(t, err)
	src, ok := m.Lookup("a.py")
	require.True(t, ok)
	assert.Equal(t, "src/a.py", src)
}

func TestFromJSON_Flat(t *testing.T) {
	m, err := FromJSON([]byte(`{"a.py": "src/a.py", "b.py": "src/b.py"}`), Strict)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
}

func TestFromJSON_NestedBuildMap(t *testing.T) {
	m, err := FromJSON([]byte(`{"build_map": {"a.py": "src/a.py"}, "built_targets_count": 1}`), Strict)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestFilter(t *testing.T) {
	m, err := New([]Entry{
		{Artifact: "__manifest__.py", Source: "gen/m.py"},
		{Artifact: "a.py", Source: "src/a.py"},
	}, Strict)
	require.NoError(t, err)
	filtered := m.Filter(func(artifact, _ string) bool { return artifact != "__manifest__.py" })
	assert.Equal(t, 1, filtered.Len())
	_, ok := filtered.Lookup("__manifest__.py")
	assert.False(t, ok)
}

func TestMerge_NameEqual(t *testing.T) {
	left, _ := New([]Entry{{Artifact: "a.py", Source: "src/a.py"}}, Strict)
	right, _ := New([]Entry{{Artifact: "a.py", Source: "src/a.py"}, {Artifact: "b.py", Source: "src/b.py"}}, Strict)

	merged, err := Merge(left, right, NameEqualResolver)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len())
}

func TestMerge_NameEqual_Conflict(t *testing.T) {
	left, _ := New([]Entry{{Artifact: "a.py", Source: "foo/a.py"}}, Strict)
	right, _ := New([]Entry{{Artifact: "a.py", Source: "bar/a.py"}}, Strict)

	_, err := Merge(left, right, NameEqualResolver)
	require.Error(t, err)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "a.py", conflictErr.Artifact)
}

func TestMerge_NameOrContentEqual(t *testing.T) {
	content := map[string]string{
		"foo/a.py": "print(1)\n",
		"bar/a.py": "print(1)\n",
	}
	var logged []string
	resolver := NameOrContentEqualResolver(
		func(p string) ([]byte, error) { return []byte(content[p]), nil },
		func(artifact, kept, dropped string) {
			logged = append(logged, artifact+":"+kept+":"+dropped)
		},
	)

	left, _ := New([]Entry{{Artifact: "a.py", Source: "foo/a.py"}}, Strict)
	right, _ := New([]Entry{{Artifact: "a.py", Source: "bar/a.py"}}, Strict)

	merged, err := Merge(left, right, resolver)
	require.NoError(t, err)
	src, _ := merged.Lookup("a.py")
	assert.Equal(t, "foo/a.py", src)
	assert.Len(t, logged, 1)
}

func TestMerge_NameOrContentEqual_DifferentContent(t *testing.T) {
	content := map[string]string{
		"foo/a.py": "print(1)\n",
		"bar/a.py": "print(2)\n",
	}
	resolver := NameOrContentEqualResolver(
		func(p string) ([]byte, error) { return []byte(content[p]), nil },
		nil,
	)

	left, _ := New([]Entry{{Artifact: "a.py", Source: "foo/a.py"}}, Strict)
	right, _ := New([]Entry{{Artifact: "a.py", Source: "bar/a.py"}}, Strict)

	_, err := Merge(left, right, resolver)
	require.Error(t, err)
}

func TestIndex_LookupSourceAndArtifact(t *testing.T) {
	m, err := New([]Entry{
		{Artifact: "a.py", Source: "src/a.py"},
		{Artifact: "a.pyi", Source: "src/a.py"},
		{Artifact: "b.py", Source: "src/b.py"},
	}, Strict)
	require.NoError(t, err)

	ix := Index(m)
	for _, e := range m.Entries() {
		src, ok := ix.LookupSource(e.Artifact)
		require.True(t, ok)
		assert.Equal(t, m.entries[e.Artifact], src)
	}

	arts := ix.LookupArtifact("src/a.py")
	assert.Equal(t, []string{"a.py", "a.pyi"}, arts)
}

func TestDiff_AllThreeKinds(t *testing.T) {
	original, _ := New([]Entry{
		{Artifact: "keep.py", Source: "src/keep.py"},
		{Artifact: "gone.py", Source: "src/gone.py"},
		{Artifact: "changed.py", Source: "src/old.py"},
	}, Strict)
	current, _ := New([]Entry{
		{Artifact: "keep.py", Source: "src/keep.py"},
		{Artifact: "changed.py", Source: "src/new.py"},
		{Artifact: "added.py", Source: "src/added.py"},
	}, Strict)

	d := Diff(original, current)
	assert.Equal(t, 3, d.Len())

	c, ok := d.Get("gone.py")
	require.True(t, ok)
	assert.Equal(t, Deleted, c.Kind)

	c, ok = d.Get("changed.py")
	require.True(t, ok)
	assert.Equal(t, Changed, c.Kind)
	assert.Equal(t, "src/new.py", c.Source)

	c, ok = d.Get("added.py")
	require.True(t, ok)
	assert.Equal(t, Added, c.Kind)

	_, ok = d.Get("keep.py")
	assert.False(t, ok)
}

func TestStrictApplyDifference_RoundTrips(t *testing.T) {
	original, _ := New([]Entry{
		{Artifact: "keep.py", Source: "src/keep.py"},
		{Artifact: "gone.py", Source: "src/gone.py"},
		{Artifact: "changed.py", Source: "src/old.py"},
	}, Strict)
	current, _ := New([]Entry{
		{Artifact: "keep.py", Source: "src/keep.py"},
		{Artifact: "changed.py", Source: "src/new.py"},
		{Artifact: "added.py", Source: "src/added.py"},
	}, Strict)

	d := Diff(original, current)
	rebuilt, err := StrictApplyDifference(original, d)
	require.NoError(t, err)

	redone := Diff(original, rebuilt)
	assert.Equal(t, d.changes, redone.changes)
	assert.Equal(t, current.Entries(), rebuilt.Entries())
}

func TestStrictApplyDifference_InconsistentFails(t *testing.T) {
	original, _ := New([]Entry{{Artifact: "a.py", Source: "src/a.py"}}, Strict)
	d := &Difference{changes: map[string]Change{
		"missing.py": {Kind: Deleted},
	}}
	_, err := StrictApplyDifference(original, d)
	require.Error(t, err)
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
}
