package modulepath

import (
	"os"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lazyCacheSize bounds the number of qualifiers whose resolution is cached
// in memory at once.
const lazyCacheSize = 4096

// LazyFinder never crawls. It resolves one qualifier at a time by listing
// only the directories that could contain a file realizing it, caching the
// result per qualifier. Use this strategy for large search trees where an
// up-front crawl is too expensive and most qualifiers are never asked
// about.
type LazyFinder struct {
	*Finder
	cache *lru.Cache[string, []ModulePath]
}

// NewLazyFinder constructs a lazy finder over f.
func NewLazyFinder(f *Finder) *LazyFinder {
	cache, err := lru.New[string, []ModulePath](lazyCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which lazyCacheSize never is.
		panic(err)
	}
	return &LazyFinder{Finder: f, cache: cache}
}

// Cached reports whether qualifier q currently has a cached resolution.
// The lazy module tracker uses this to decide whether to react to an
// incremental filesystem event at all.
func (lf *LazyFinder) Cached(q string) bool {
	return lf.cache.Contains(q)
}

// Resolve returns the module paths realizing qualifier q, winner-first,
// consulting (and populating) the directory-listing cache.
func (lf *LazyFinder) Resolve(q string) []ModulePath {
	if cached, ok := lf.cache.Get(q); ok {
		return cached
	}

	var candidates []ModulePath
	segments := strings.Split(q, ".")
	for split := 0; split <= len(segments); split++ {
		dirSegs := segments[:split]
		fileSegs := segments[split:]
		dirRel := strings.Join(dirSegs, "/")

		for _, root := range lf.Roots {
			candidates = append(candidates, lf.listCandidates(root, dirRel, fileSegs)...)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return Compare(candidates[i], candidates[j]) < 0 })
	lf.cache.Add(q, candidates)
	return candidates
}

// listCandidates lists one directory (root.Dir/dirRel) looking for a file
// whose stem matches join(fileSegs, "."), or, if fileSegs is empty, an
// __init__ file directly inside the qualifier's own directory.
func (lf *LazyFinder) listCandidates(root SearchRoot, dirRel string, fileSegs []string) []ModulePath {
	absDir := root.Dir
	if dirRel != "" {
		absDir = root.Dir + "/" + dirRel
	}
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil
	}

	var want string
	if len(fileSegs) == 0 {
		want = "__init__"
	} else {
		want = strings.Join(fileSegs, ".")
	}

	var out []ModulePath
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stem, ok := stemFor(name)
		if !ok || stem != want {
			continue
		}
		rel := name
		if dirRel != "" {
			rel = dirRel + "/" + name
		}
		mp, ok := lf.classify(root, rel)
		if !ok {
			continue
		}
		out = append(out, *mp)
	}
	return out
}

func stemFor(name string) (string, bool) {
	for _, s := range sourceSuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSuffix(name, s), true
		}
	}
	return "", false
}

// Invalidate drops the cached resolution for qualifier q and every
// ancestor qualifier of q (e.g. invalidating "a.b.c" also invalidates
// "a.b" and "a"), since a new file can change what any of those
// directories list.
func (lf *LazyFinder) Invalidate(q string) {
	for {
		lf.cache.Remove(q)
		idx := strings.LastIndex(q, ".")
		if idx < 0 {
			return
		}
		q = q[:idx]
	}
}
