package modulepath

import (
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// EagerFinder recursively walks every search root once, at construction,
// and holds the full set of module paths it discovered. Use this strategy
// when the caller wants a complete up-front index and can afford the
// crawl; moduletracker.NewEagerTracker consumes it, and trackerctl picks
// that tracker when lazy discovery is off.
type EagerFinder struct {
	*Finder
	all []ModulePath
}

// NewEagerFinder walks every root in f.Roots concurrently (bounded the same
// way buildinterface.Construct bounds its per-target source-DB loads) and
// returns the complete, deduplicated set of module paths. Paths present
// under more than one root (by absolute path) keep only the first root's
// entry.
func NewEagerFinder(f *Finder) (*EagerFinder, error) {
	perRoot := make([][]ModulePath, len(f.Roots))

	var g errgroup.Group
	g.SetLimit(8)
	for i, root := range f.Roots {
		i, root := i, root
		g.Go(func() error {
			found, err := walkRoot(f, root)
			if err != nil {
				return err
			}
			perRoot[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seenAbs := make(map[string]bool)
	var all []ModulePath
	for _, found := range perRoot { // root order preserved: first root wins
		for _, mp := range found {
			abs := mp.AbsolutePath()
			if seenAbs[abs] {
				continue
			}
			seenAbs[abs] = true
			all = append(all, mp)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Qualifier != all[j].Qualifier {
			return all[i].Qualifier < all[j].Qualifier
		}
		return Compare(all[i], all[j]) < 0
	})

	return &EagerFinder{Finder: f, all: all}, nil
}

// walkRoot runs one synchronous filepath.Walk per call; the found slice is
// only ever touched by that single walk goroutine, so no locking is needed
// here (NewEagerFinder's errgroup gives each root its own walkRoot call).
func walkRoot(f *Finder, root SearchRoot) ([]ModulePath, error) {
	var found []ModulePath

	err := filepath.Walk(root.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root.Dir && shouldSkipDir(filepath.Base(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root.Dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		mp, ok := f.classify(root, rel)
		if !ok {
			return nil
		}
		found = append(found, *mp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func shouldSkipDir(base string) bool {
	if base == "" {
		return false
	}
	if base[0] == '.' {
		return true
	}
	return base == "__pycache__"
}

// All returns every module path discovered at construction time.
func (ef *EagerFinder) All() []ModulePath {
	return ef.all
}

// ByQualifier returns every module path discovered for qualifier q, sorted
// winner-first by Compare.
func (ef *EagerFinder) ByQualifier(q string) []ModulePath {
	var out []ModulePath
	for _, mp := range ef.all {
		if mp.Qualifier == q {
			out = append(out, mp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
	return out
}
