// Package modulepath maps filesystem paths under one or more ordered search
// roots to ModulePath values: a canonical (raw path, qualifier, priority)
// handle used throughout the module tracker.
package modulepath

import (
	"path/filepath"
	"regexp"
	"strings"
)

// SearchRoot is one ordered entry in the list of directories module files
// are located under. Index determines priority: lower wins ties.
// SkipTypeCheck opts every file under this root out of type checking (a
// third-party vendor root, say); the zero value keeps type checking on,
// matching every root that doesn't say otherwise.
type SearchRoot struct {
	Index         int
	Dir           string
	SkipTypeCheck bool
}

// Raw identifies one file: the search root it was found under, its
// relative path within that root, and whether it should be type checked.
// Two ModulePath values are equal iff their Raw triples are equal.
type Raw struct {
	Root            SearchRoot
	Relative        string
	ShouldTypeCheck bool
}

// ModulePath is a logical handle to one file.
type ModulePath struct {
	Raw       Raw
	Qualifier string
	IsStub    bool
	IsInit    bool
}

// Equal reports whether two module paths have identical Raw triples.
func (m ModulePath) Equal(other ModulePath) bool {
	return m.Raw.Root.Index == other.Raw.Root.Index &&
		m.Raw.Relative == other.Raw.Relative &&
		m.Raw.ShouldTypeCheck == other.Raw.ShouldTypeCheck
}

// AbsolutePath joins the search root directory with the relative path.
func (m ModulePath) AbsolutePath() string {
	return filepath.Join(m.Raw.Root.Dir, m.Raw.Relative)
}

var sourceSuffixes = []string{".pyi", ".py"}

// Compare implements the priority-aware total order on module paths
// sharing a qualifier: stubs before implementations, shorter relative
// paths before longer, lower-index search roots before higher. Returns a
// negative number if a precedes (wins over) b, zero if equal priority,
// positive otherwise.
func Compare(a, b ModulePath) int {
	if a.IsStub != b.IsStub {
		if a.IsStub {
			return -1
		}
		return 1
	}
	if la, lb := len(a.Raw.Relative), len(b.Raw.Relative); la != lb {
		return la - lb
	}
	return a.Raw.Root.Index - b.Raw.Root.Index
}

// Finder holds the configuration shared by both the eager and lazy
// discovery strategies: the ordered search roots and the exclude rules
// used to classify a candidate path.
type Finder struct {
	Roots    []SearchRoot
	Excludes []*regexp.Regexp
}

// classify attempts to turn one filesystem path into a ModulePath.
// Returns (nil, false) for hidden files, non-source suffixes, and paths
// matching any configured exclude regex.
func (f *Finder) classify(root SearchRoot, relPath string) (*ModulePath, bool) {
	base := filepath.Base(relPath)
	if strings.HasPrefix(base, ".") {
		return nil, false
	}
	for _, re := range f.Excludes {
		if re.MatchString(relPath) {
			return nil, false
		}
	}

	var suffix string
	for _, s := range sourceSuffixes {
		if strings.HasSuffix(relPath, s) {
			suffix = s
			break
		}
	}
	if suffix == "" {
		return nil, false
	}

	qualifier := qualifierOf(relPath, suffix)
	isInit := strings.TrimSuffix(base, suffix) == "__init__"

	mp := &ModulePath{
		Raw: Raw{
			Root:            root,
			Relative:        relPath,
			ShouldTypeCheck: !root.SkipTypeCheck,
		},
		Qualifier: qualifier,
		IsStub:    suffix == ".pyi",
		IsInit:    isInit,
	}
	return mp, true
}

// qualifierOf derives the dotted qualifier for relPath: split on path
// separators, strip the source suffix, and collapse a trailing __init__
// segment into its parent qualifier.
func qualifierOf(relPath, suffix string) string {
	trimmed := strings.TrimSuffix(relPath, suffix)
	segments := strings.Split(filepath.ToSlash(trimmed), "/")
	if len(segments) > 0 && segments[len(segments)-1] == "__init__" {
		segments = segments[:len(segments)-1]
	}
	return strings.Join(segments, ".")
}

// IsFile reports whether path passes the finder's file-classification
// predicate (used by the module tracker to decide whether a raw
// filesystem event even describes a candidate module file).
func (f *Finder) IsFile(root SearchRoot, relPath string) bool {
	_, ok := f.classify(root, relPath)
	return ok
}

// ClassifyAbsolute converts an absolute path and its owning root into a
// ModulePath, or (nil, false) if it's not a valid module candidate.
func (f *Finder) ClassifyAbsolute(root SearchRoot, absPath string) (*ModulePath, bool) {
	rel, err := filepath.Rel(root.Dir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	return f.classify(root, filepath.ToSlash(rel))
}

// OwningRoot returns the most specific (longest-matching) search root
// absPath lives under, or (SearchRoot{}, false) if it lives under none.
// Specificity, not list order, decides ownership when roots nest (e.g.
// /project and /project/vendor): the file belongs to the deepest root
// that contains it, so its relative path and per-root flags come from
// the root actually meant for it.
func (f *Finder) OwningRoot(absPath string) (SearchRoot, bool) {
	var best SearchRoot
	bestLen := -1
	for _, root := range f.Roots {
		rel, err := filepath.Rel(root.Dir, absPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if len(root.Dir) > bestLen {
			best = root
			bestLen = len(root.Dir)
		}
	}
	return best, bestLen >= 0
}
