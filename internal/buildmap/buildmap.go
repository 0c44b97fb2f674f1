// Package buildmap implements the one-to-many relation from source files to
// artifact files that every analysis query in this repository is ultimately
// built on: a finite map artifact_rel_path -> source_rel_path, together with
// its indexed inverse and the delta algebra used to patch an artifact tree
// incrementally.
package buildmap

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DuplicatePolicy controls how construction from an association list or a
// JSON document handles a repeated artifact key.
type DuplicatePolicy int

const (
	// Strict fails construction on any duplicate artifact key.
	Strict DuplicatePolicy = iota
	// Lenient keeps the first value seen for a duplicate artifact key.
	Lenient
)

// BuildMap is an immutable artifact_rel_path -> source_rel_path relation.
// The zero value is not usable; construct with New, FromJSON, or Merge.
type BuildMap struct {
	entries map[string]string
}

// Entry is one (artifact, source) pair, used for construction and bulk
// enumeration.
type Entry struct {
	Artifact string
	Source   string
}

// DuplicateKeyError is returned by New/FromJSON under Strict when an
// artifact key repeats.
type DuplicateKeyError struct {
	Artifact string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("buildmap: duplicate artifact key %q", e.Artifact)
}

// New builds a BuildMap from an association list of entries.
func New(entries []Entry, policy DuplicatePolicy) (*BuildMap, error) {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		if existing, ok := m[e.Artifact]; ok {
			if policy == Strict {
				return nil, &DuplicateKeyError{Artifact: e.Artifact}
			}
			_ = existing // lenient: first wins, keep existing
			continue
		}
		m[e.Artifact] = e.Source
	}
	return &BuildMap{entries: m}, nil
}

// DroppedTarget records why a target's partial build map did not make it
// into a merge, per the "dropped_targets" field of the external "Merged
// source database" document.
type DroppedTarget struct {
	ConflictWith        string `json:"conflict_with"`
	ArtifactPath        string `json:"artifact_path"`
	PreservedSourcePath string `json:"preserved_source_path"`
	DroppedSourcePath   string `json:"dropped_source_path"`
}

// jsonContainer matches the external shape `{artifact: source, ...}`,
// optionally nested under a "build_map" container field, optionally
// alongside "built_targets_count"/"dropped_targets" for the full "Merged
// source database" document shape (see MergedDocument).
type jsonContainer struct {
	BuildMap          map[string]string        `json:"build_map"`
	BuiltTargetsCount int                       `json:"built_targets_count"`
	DroppedTargets    map[string]DroppedTarget `json:"dropped_targets"`
}

// FromJSON parses either a bare `{artifact: source, ...}` document or one
// nested under a "build_map" field.
func FromJSON(data []byte, policy DuplicatePolicy) (*BuildMap, error) {
	var nested jsonContainer
	if err := json.Unmarshal(data, &nested); err == nil && nested.BuildMap != nil {
		return fromFlat(nested.BuildMap, policy)
	}
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("buildmap: parse json: %w", err)
	}
	return fromFlat(flat, policy)
}

func fromFlat(flat map[string]string, policy DuplicatePolicy) (*BuildMap, error) {
	entries := make([]Entry, 0, len(flat))
	for a, s := range flat {
		entries = append(entries, Entry{Artifact: a, Source: s})
	}
	return New(entries, policy)
}

// MergedDocument is the lazy builder's external output document: the merged
// map plus how many targets contributed to it and, for each target that did
// not, why it was dropped.
type MergedDocument struct {
	Map               *BuildMap
	BuiltTargetsCount int
	DroppedTargets    map[string]DroppedTarget
}

// MarshalJSON renders the "Merged source database" wire shape: build_map,
// built_targets_count, dropped_targets.
func (d *MergedDocument) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, d.Map.Len())
	for _, e := range d.Map.Entries() {
		flat[e.Artifact] = e.Source
	}
	dropped := d.DroppedTargets
	if dropped == nil {
		dropped = map[string]DroppedTarget{}
	}
	return json.Marshal(jsonContainer{
		BuildMap:          flat,
		BuiltTargetsCount: d.BuiltTargetsCount,
		DroppedTargets:    dropped,
	})
}

// ParseMergedDocument parses the "Merged source database" wire shape back
// into a MergedDocument.
func ParseMergedDocument(data []byte, policy DuplicatePolicy) (*MergedDocument, error) {
	var nested jsonContainer
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("buildmap: parse merged document: %w", err)
	}
	m, err := fromFlat(nested.BuildMap, policy)
	if err != nil {
		return nil, err
	}
	return &MergedDocument{
		Map:               m,
		BuiltTargetsCount: nested.BuiltTargetsCount,
		DroppedTargets:    nested.DroppedTargets,
	}, nil
}

// Len returns the number of artifact entries.
func (m *BuildMap) Len() int {
	return len(m.entries)
}

// Lookup returns the source for an artifact key.
func (m *BuildMap) Lookup(artifact string) (string, bool) {
	s, ok := m.entries[artifact]
	return s, ok
}

// Entries returns all (artifact, source) pairs, sorted by artifact path for
// deterministic iteration.
func (m *BuildMap) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for a, s := range m.entries {
		out = append(out, Entry{Artifact: a, Source: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Artifact < out[j].Artifact })
	return out
}

// Filter returns a new BuildMap retaining only entries for which pred holds.
func (m *BuildMap) Filter(pred func(artifact, source string) bool) *BuildMap {
	out := make(map[string]string, len(m.entries))
	for a, s := range m.entries {
		if pred(a, s) {
			out[a] = s
		}
	}
	return &BuildMap{entries: out}
}

// ConflictError reports two sides of a merge disagreeing on a key, with no
// resolver accepting either value.
type ConflictError struct {
	Artifact    string
	LeftSource  string
	RightSource string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("buildmap: merge conflict on %q: left=%q right=%q", e.Artifact, e.LeftSource, e.RightSource)
}

// Resolver reconciles a key present on both sides of a merge. It returns the
// chosen source and true, or ("", false) to signal the conflict cannot be
// resolved (reported by Merge as a *ConflictError).
type Resolver func(artifact, left, right string) (string, bool)

// NameEqualResolver accepts a shared key only if both sides already name the
// same source file.
func NameEqualResolver(_, left, right string) (string, bool) {
	if left == right {
		return left, true
	}
	return "", false
}

// NameOrContentEqualResolver extends NameEqualResolver: two distinct source
// paths are also accepted if readContent reports their bytes are identical.
// On that path it reports via onContentEqual that the left value was kept,
// mirroring the source's "log that the former was chosen" behavior.
func NameOrContentEqualResolver(readContent func(path string) ([]byte, error), onContentEqual func(artifact, kept, dropped string)) Resolver {
	return func(artifact, left, right string) (string, bool) {
		if left == right {
			return left, true
		}
		lb, lerr := readContent(left)
		rb, rerr := readContent(right)
		if lerr != nil || rerr != nil {
			return "", false
		}
		if string(lb) == string(rb) {
			if onContentEqual != nil {
				onContentEqual(artifact, left, right)
			}
			return left, true
		}
		return "", false
	}
}

// Merge combines left and right, reconciling overlapping keys with resolve.
// Returns a *ConflictError for the first (by sorted key order) key resolve
// rejects.
func Merge(left, right *BuildMap, resolve Resolver) (*BuildMap, error) {
	out := make(map[string]string, len(left.entries)+len(right.entries))
	for a, s := range left.entries {
		out[a] = s
	}
	keys := make([]string, 0, len(right.entries))
	for a := range right.entries {
		keys = append(keys, a)
	}
	sort.Strings(keys)
	for _, a := range keys {
		rs := right.entries[a]
		ls, inLeft := left.entries[a]
		if !inLeft {
			out[a] = rs
			continue
		}
		chosen, ok := resolve(a, ls, rs)
		if !ok {
			return nil, &ConflictError{Artifact: a, LeftSource: ls, RightSource: rs}
		}
		out[a] = chosen
	}
	return &BuildMap{entries: out}, nil
}

// Indexed supplements the forward artifact->source direction with the
// inverse multimap source->[]artifact, both amortized O(1).
type Indexed struct {
	forward map[string]string
	inverse map[string][]string
}

// Index builds the indexed view of m. The inverse lists are sorted for
// determinism.
func Index(m *BuildMap) *Indexed {
	inverse := make(map[string][]string, len(m.entries))
	for a, s := range m.entries {
		inverse[s] = append(inverse[s], a)
	}
	for s := range inverse {
		sort.Strings(inverse[s])
	}
	forward := make(map[string]string, len(m.entries))
	for a, s := range m.entries {
		forward[a] = s
	}
	return &Indexed{forward: forward, inverse: inverse}
}

// LookupSource returns the source mapped from artifact, if any.
func (ix *Indexed) LookupSource(artifact string) (string, bool) {
	s, ok := ix.forward[artifact]
	return s, ok
}

// LookupArtifact returns every artifact key mapping to source, sorted.
func (ix *Indexed) LookupArtifact(source string) []string {
	return ix.inverse[source]
}
