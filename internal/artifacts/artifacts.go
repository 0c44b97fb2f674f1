// Package artifacts realizes a buildmap.BuildMap as a tree of symbolic
// links on disk and keeps it in sync with incremental build-map deltas.
// It never mutates the build map itself — it only reads it to drive
// filesystem operations rooted at an artifact directory.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"

	"buildtrack/internal/buildmap"
	"buildtrack/internal/progress"
)

const dirPerm = 0o777

// ArtifactError wraps a filesystem operation failure. Always returned as
// a value, never panicked.
type ArtifactError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifacts: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Populate walks every (artifact_rel, source_rel) pair in m and creates a
// symbolic link at artifactRoot/artifact_rel pointing to
// sourceRoot/source_rel. Parent directories are created with permission
// 0777 subject to process umask. The order entries are processed in is
// unspecified. Fails on the first link creation error.
func Populate(sourceRoot, artifactRoot string, m *buildmap.BuildMap, prog *progress.Reporter) error {
	if err := requireDir(sourceRoot); err != nil {
		return err
	}
	if err := os.MkdirAll(artifactRoot, dirPerm); err != nil {
		return &ArtifactError{Op: "mkdir", Path: artifactRoot, Err: err}
	}

	entries := m.Entries()
	for _, e := range entries {
		if err := link(sourceRoot, artifactRoot, e.Artifact, e.Source); err != nil {
			return err
		}
	}
	if prog != nil {
		prog.Log("materialized %s links under %s", progress.Count(len(entries)), artifactRoot)
	}
	return nil
}

// Update applies a buildmap.Difference to an already-populated artifact
// tree: New creates a link, Deleted removes it, Changed atomically replaces
// its target (remove then create). Not transactional: on error, entries
// already applied remain applied, and the error is surfaced to the caller.
func Update(sourceRoot, artifactRoot string, d *buildmap.Difference, prog *progress.Reporter) error {
	var created, removed, changed int
	for _, e := range d.Entries() {
		switch e.Change.Kind {
		case buildmap.Added:
			if err := link(sourceRoot, artifactRoot, e.Artifact, e.Change.Source); err != nil {
				return err
			}
			created++
		case buildmap.Deleted:
			if err := unlink(artifactRoot, e.Artifact); err != nil {
				return err
			}
			removed++
		case buildmap.Changed:
			if err := unlink(artifactRoot, e.Artifact); err != nil {
				return err
			}
			if err := link(sourceRoot, artifactRoot, e.Artifact, e.Change.Source); err != nil {
				return err
			}
			changed++
		}
	}
	if prog != nil {
		prog.Log("updated artifact tree: +%s -%s ~%s", progress.Count(created), progress.Count(removed), progress.Count(changed))
	}
	return nil
}

func link(sourceRoot, artifactRoot, artifactRel, sourceRel string) error {
	artifactPath := filepath.Join(artifactRoot, artifactRel)
	if err := os.MkdirAll(filepath.Dir(artifactPath), dirPerm); err != nil {
		return &ArtifactError{Op: "mkdir", Path: filepath.Dir(artifactPath), Err: err}
	}
	target := filepath.Join(sourceRoot, sourceRel)
	// Replace an existing link so re-populate / Changed are idempotent.
	if info, err := os.Lstat(artifactPath); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return &ArtifactError{Op: "symlink", Path: artifactPath, Err: fmt.Errorf("collision with non-symlink")}
		}
		if err := os.Remove(artifactPath); err != nil {
			return &ArtifactError{Op: "remove", Path: artifactPath, Err: err}
		}
	}
	if err := os.Symlink(target, artifactPath); err != nil {
		return &ArtifactError{Op: "symlink", Path: artifactPath, Err: err}
	}
	return nil
}

func unlink(artifactRoot, artifactRel string) error {
	artifactPath := filepath.Join(artifactRoot, artifactRel)
	if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
		return &ArtifactError{Op: "remove", Path: artifactPath, Err: err}
	}
	return nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &ArtifactError{Op: "stat", Path: path, Err: err}
	}
	if !info.IsDir() {
		return &ArtifactError{Op: "stat", Path: path, Err: fmt.Errorf("not a directory")}
	}
	return nil
}
