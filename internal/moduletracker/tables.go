package moduletracker

import (
	"sort"

	"buildtrack/internal/modulepath"
)

// explicitTable is qualifier -> non-empty list of ModulePath, sorted
// winner-first by modulepath.Compare.
type explicitTable struct {
	byQualifier map[string][]modulepath.ModulePath
}

func newExplicitTable() *explicitTable {
	return &explicitTable{byQualifier: make(map[string][]modulepath.ModulePath)}
}

func (t *explicitTable) get(q string) ([]modulepath.ModulePath, bool) {
	list, ok := t.byQualifier[q]
	return list, ok
}

// sameRawPath matches entries by search root and relative path only. The
// should-type-check flag is deliberately ignored: a removal event for a
// deleted symlink can carry a flag that no longer reflects the stored
// value.
func sameRawPath(a, b modulepath.ModulePath) bool {
	return a.Raw.Root.Index == b.Raw.Root.Index && a.Raw.Relative == b.Raw.Relative
}

// applyNewOrChanged inserts mp into its qualifier's priority-ordered list.
// Returns (update, true) if the change is observable.
func (t *explicitTable) applyNewOrChanged(mp modulepath.ModulePath) (ExplicitUpdate, bool) {
	list, ok := t.byQualifier[mp.Qualifier]
	if !ok {
		t.byQualifier[mp.Qualifier] = []modulepath.ModulePath{mp}
		return ExplicitUpdate{Qualifier: mp.Qualifier, Kind: ExplicitNew, Path: &mp}, true
	}

	replaced := false
	next := make([]modulepath.ModulePath, 0, len(list)+1)
	for _, existing := range list {
		if sameRawPath(existing, mp) {
			next = append(next, mp)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, mp)
	}
	sort.Slice(next, func(i, j int) bool { return modulepath.Compare(next[i], next[j]) < 0 })
	t.byQualifier[mp.Qualifier] = next

	if sameRawPath(next[0], mp) {
		return ExplicitUpdate{Qualifier: mp.Qualifier, Kind: ExplicitChanged, Path: &mp}, true
	}
	return ExplicitUpdate{}, false
}

// applyRemove removes the entry matching mp's raw path from its
// qualifier's list.
func (t *explicitTable) applyRemove(mp modulepath.ModulePath) (ExplicitUpdate, bool) {
	list, ok := t.byQualifier[mp.Qualifier]
	if !ok {
		return ExplicitUpdate{}, false
	}
	oldHead := list[0]

	next := make([]modulepath.ModulePath, 0, len(list))
	removed := false
	for _, existing := range list {
		if !removed && sameRawPath(existing, mp) {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	if !removed {
		return ExplicitUpdate{}, false
	}

	if len(next) == 0 {
		delete(t.byQualifier, mp.Qualifier)
		return ExplicitUpdate{Qualifier: mp.Qualifier, Kind: ExplicitDelete}, true
	}
	t.byQualifier[mp.Qualifier] = next

	if sameRawPath(oldHead, mp) {
		newHead := next[0]
		return ExplicitUpdate{Qualifier: mp.Qualifier, Kind: ExplicitChanged, Path: &newHead}, true
	}
	return ExplicitUpdate{}, false
}

// reduceExplicit folds a subsequent update onto an already-pending one for
// the same qualifier within a batch.
// Panics with *InvariantViolation on an illegal pair — that indicates the
// caller's event stream, not this package, is inconsistent.
func reduceExplicit(qualifier string, prev, next ExplicitUpdate) ExplicitUpdate {
	switch {
	case prev.Kind == ExplicitNew && next.Kind == ExplicitChanged:
		return ExplicitUpdate{Qualifier: qualifier, Kind: ExplicitNew, Path: next.Path}
	case prev.Kind == ExplicitNew && next.Kind == ExplicitDelete:
		return ExplicitUpdate{Qualifier: qualifier, Kind: ExplicitChanged, Path: prev.Path}
	case prev.Kind == ExplicitChanged && next.Kind == ExplicitChanged:
		return ExplicitUpdate{Qualifier: qualifier, Kind: ExplicitChanged, Path: next.Path}
	case prev.Kind == ExplicitChanged && next.Kind == ExplicitDelete:
		return ExplicitUpdate{Qualifier: qualifier, Kind: ExplicitDelete}
	case prev.Kind == ExplicitDelete && next.Kind == ExplicitNew:
		return ExplicitUpdate{Qualifier: qualifier, Kind: ExplicitChanged, Path: next.Path}
	default:
		panic(&InvariantViolation{Qualifier: qualifier, Prev: prev.Kind, Next: next.Kind})
	}
}

// implicitTable is qualifier -> set of raw paths (by AbsolutePath) of its
// explicit children. Non-empty iff the qualifier is importable as a
// namespace package.
type implicitTable struct {
	children map[string]map[string]bool
}

func newImplicitTable() *implicitTable {
	return &implicitTable{children: make(map[string]map[string]bool)}
}

func parentQualifier(q string) (string, bool) {
	for i := len(q) - 1; i >= 0; i-- {
		if q[i] == '.' {
			return q[:i], true
		}
	}
	if q == "" {
		return "", false
	}
	return "", false // top-level qualifiers have no parent package to record under
}

// record adds child (identified by its absolute path) under its parent
// qualifier. Returns (qualifier, true) if the parent transitioned
// absent -> importable.
func (t *implicitTable) record(mp modulepath.ModulePath) (string, bool) {
	parent, ok := parentQualifier(mp.Qualifier)
	if !ok {
		return "", false
	}
	set, exists := t.children[parent]
	wasEmpty := !exists || len(set) == 0
	if !exists {
		set = make(map[string]bool)
		t.children[parent] = set
	}
	set[mp.AbsolutePath()] = true
	return parent, wasEmpty && len(set) > 0
}

// unrecord removes child under its parent qualifier. Returns (qualifier,
// true) if the parent transitioned importable -> absent.
func (t *implicitTable) unrecord(mp modulepath.ModulePath) (string, bool) {
	parent, ok := parentQualifier(mp.Qualifier)
	if !ok {
		return "", false
	}
	set, exists := t.children[parent]
	if !exists {
		return parent, false
	}
	delete(set, mp.AbsolutePath())
	if len(set) == 0 {
		delete(t.children, parent)
		return parent, true
	}
	return parent, false
}

func (t *implicitTable) isImportable(q string) bool {
	set, ok := t.children[q]
	return ok && len(set) > 0
}
