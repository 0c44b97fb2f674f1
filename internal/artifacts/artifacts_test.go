package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"buildtrack/internal/buildmap"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestPopulate_CreatesLinks(t *testing.T) {
	sourceRoot := t.TempDir()
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")
	writeFile(t, sourceRoot, "pkg/a.py", "x = 1\n")

	m, err := buildmap.New([]buildmap.Entry{{Artifact: "pkg/a.py", Source: "pkg/a.py"}}, buildmap.Strict)
	require.NoError(t, err)

	require.NoError(t, Populate(sourceRoot, artifactRoot, m, nil))

	linkPath := filepath.Join(artifactRoot, "pkg/a.py")
	info, err := os.Lstat(linkPath)
	require.NoError(t, err)
	require.True(t, info.Mode()&os.ModeSymlink != 0)

	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(sourceRoot, "pkg/a.py"), target)
}

func TestPopulate_FailsOnMissingSourceRoot(t *testing.T) {
	m, _ := buildmap.New(nil, buildmap.Strict)
	err := Populate(filepath.Join(t.TempDir(), "missing"), t.TempDir(), m, nil)
	require.Error(t, err)
}

func TestUpdate_AppliesNewDeletedChanged(t *testing.T) {
	sourceRoot := t.TempDir()
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")
	writeFile(t, sourceRoot, "a.py", "old\n")
	writeFile(t, sourceRoot, "b.py", "b\n")
	writeFile(t, sourceRoot, "c.py", "c\n")

	original, _ := buildmap.New([]buildmap.Entry{
		{Artifact: "a.py", Source: "a.py"},
		{Artifact: "b.py", Source: "b.py"},
	}, buildmap.Strict)
	require.NoError(t, Populate(sourceRoot, artifactRoot, original, nil))

	current, _ := buildmap.New([]buildmap.Entry{
		{Artifact: "a.py", Source: "c.py"}, // changed target
		{Artifact: "c.py", Source: "c.py"}, // new
	}, buildmap.Strict) // b.py dropped -> deleted

	d := buildmap.Diff(original, current)
	require.NoError(t, Update(sourceRoot, artifactRoot, d, nil))

	target, err := os.Readlink(filepath.Join(artifactRoot, "a.py"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(sourceRoot, "c.py"), target)

	_, err = os.Lstat(filepath.Join(artifactRoot, "b.py"))
	require.True(t, os.IsNotExist(err))

	_, err = os.Lstat(filepath.Join(artifactRoot, "c.py"))
	require.NoError(t, err)
}

func TestPopulate_CollisionWithNonSymlinkFails(t *testing.T) {
	sourceRoot := t.TempDir()
	artifactRoot := t.TempDir()
	writeFile(t, sourceRoot, "a.py", "x\n")
	writeFile(t, artifactRoot, "a.py", "not a link\n")

	m, _ := buildmap.New([]buildmap.Entry{{Artifact: "a.py", Source: "a.py"}}, buildmap.Strict)
	err := Populate(sourceRoot, artifactRoot, m, nil)
	require.Error(t, err)
}
