package buildmap

import (
	"fmt"
	"sort"
)

// ChangeKind distinguishes the three ways an artifact key can differ between
// two build maps.
type ChangeKind int

const (
	// Added means the artifact key exists only in the newer map.
	Added ChangeKind = iota
	// Deleted means the artifact key exists only in the older map.
	Deleted
	// Changed means the artifact key exists in both but now names a
	// different source.
	Changed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "New"
	case Deleted:
		return "Deleted"
	case Changed:
		return "Changed"
	default:
		return "Unknown"
	}
}

// Change is one entry of a Difference: the kind of change, and the new
// source path when the kind carries one (New, Changed).
type Change struct {
	Kind   ChangeKind
	Source string // empty for Deleted
}

// Difference is a finite map artifact_rel_path -> Change.
type Difference struct {
	changes map[string]Change
}

// Diff walks original and current once and tags every artifact key
// that differs between them. Unchanged keys are omitted.
func Diff(original, current *BuildMap) *Difference {
	changes := make(map[string]Change)
	for a, os := range original.entries {
		cs, ok := current.entries[a]
		if !ok {
			changes[a] = Change{Kind: Deleted}
			continue
		}
		if cs != os {
			changes[a] = Change{Kind: Changed, Source: cs}
		}
	}
	for a, cs := range current.entries {
		if _, ok := original.entries[a]; !ok {
			changes[a] = Change{Kind: Added, Source: cs}
		}
	}
	return &Difference{changes: changes}
}

// Len returns the number of changed artifact keys.
func (d *Difference) Len() int {
	return len(d.changes)
}

// Entries returns the (artifact, change) pairs sorted by artifact for
// deterministic iteration and application order.
func (d *Difference) Entries() []struct {
	Artifact string
	Change   Change
} {
	out := make([]struct {
		Artifact string
		Change   Change
	}, 0, len(d.changes))
	for a, c := range d.changes {
		out = append(out, struct {
			Artifact string
			Change   Change
		}{Artifact: a, Change: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Artifact < out[j].Artifact })
	return out
}

// Get returns the change recorded for artifact, if any.
func (d *Difference) Get(artifact string) (Change, bool) {
	c, ok := d.changes[artifact]
	return c, ok
}

// ApplyError reports a Difference entry inconsistent with the map it is
// being applied to.
type ApplyError struct {
	Artifact string
	Kind     ChangeKind
	Reason   string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("buildmap: cannot apply %s to %q: %s", e.Kind, e.Artifact, e.Reason)
}

// StrictApplyDifference rebuilds the post-diff map from orig and d, failing
// if d refers to an artifact inconsistent with orig: Deleted names a key
// absent from orig, New names a key already present in orig, or Changed
// names a key absent from orig.
func StrictApplyDifference(orig *BuildMap, d *Difference) (*BuildMap, error) {
	out := make(map[string]string, len(orig.entries)+len(d.changes))
	for a, s := range orig.entries {
		out[a] = s
	}
	for _, e := range d.Entries() {
		_, present := orig.entries[e.Artifact]
		switch e.Change.Kind {
		case Deleted:
			if !present {
				return nil, &ApplyError{Artifact: e.Artifact, Kind: Deleted, Reason: "not present in original"}
			}
			delete(out, e.Artifact)
		case Added:
			if present {
				return nil, &ApplyError{Artifact: e.Artifact, Kind: Added, Reason: "already present in original"}
			}
			out[e.Artifact] = e.Change.Source
		case Changed:
			if !present {
				return nil, &ApplyError{Artifact: e.Artifact, Kind: Changed, Reason: "not present in original"}
			}
			out[e.Artifact] = e.Change.Source
		}
	}
	return &BuildMap{entries: out}, nil
}
