// Package overlay lets callers inject in-memory source overrides on top of
// a read-only module tracker view without mutating the underlying tracker.
package overlay

import (
	"sync"

	"buildtrack/internal/modulepath"
	"buildtrack/internal/moduletracker"
)

// CodeUpdateKind distinguishes setting new in-memory content from
// resetting to the underlying tracker's view.
type CodeUpdateKind int

const (
	// NewCode replaces the content for an artifact path.
	NewCode CodeUpdateKind = iota
	// ResetCode removes any override, falling back to the parent tracker.
	ResetCode
)

// CodeUpdate is one caller-supplied override instruction, keyed by
// artifact path (the path space the overlay's caller deals in).
type CodeUpdate struct {
	ArtifactPath string
	Kind         CodeUpdateKind
	Content      string // used iff Kind == NewCode
}

// ArtifactToModulePath resolves an artifact path to the ModulePath the
// overlay should record the override under. Supplied at construction
// since the mapping from artifact path to module path is owned by
// whatever component materialized the artifact tree (builder/artifacts),
// not by the overlay itself.
type ArtifactToModulePath func(artifactPath string) (modulepath.ModulePath, bool)

// Overlay wraps a read-only tracker view, layering in-memory overrides on
// top without mutating it.
type Overlay struct {
	mu          sync.RWMutex
	parent      *moduletracker.ReadOnly
	toModule    ArtifactToModulePath
	overrides   map[string]string // ModulePath.AbsolutePath() -> content
	byQualifier map[string]modulepath.ModulePath
	owned       map[string]bool // qualifiers the overlay has claimed
}

// New wraps parent with an empty override set.
func New(parent *moduletracker.ReadOnly, toModule ArtifactToModulePath) *Overlay {
	return &Overlay{
		parent:      parent,
		toModule:    toModule,
		overrides:   make(map[string]string),
		byQualifier: make(map[string]modulepath.ModulePath),
		owned:       make(map[string]bool),
	}
}

// UpdateOverlaidCode applies a batch of overrides and returns one
// NewExplicit-style ExplicitUpdate per entry whose artifact path resolves
// to a module path, in input order.
func (o *Overlay) UpdateOverlaidCode(updates []CodeUpdate) []moduletracker.ExplicitUpdate {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]moduletracker.ExplicitUpdate, 0, len(updates))
	for _, u := range updates {
		mp, ok := o.toModule(u.ArtifactPath)
		if !ok {
			continue
		}
		switch u.Kind {
		case NewCode:
			o.overrides[mp.AbsolutePath()] = u.Content
			o.byQualifier[mp.Qualifier] = mp
		case ResetCode:
			delete(o.overrides, mp.AbsolutePath())
			if cur, ok := o.byQualifier[mp.Qualifier]; ok && cur.Equal(mp) {
				delete(o.byQualifier, mp.Qualifier)
			}
		}
		o.owned[mp.Qualifier] = true
		mpCopy := mp
		out = append(out, moduletracker.ExplicitUpdate{
			Qualifier: mp.Qualifier,
			Kind:      moduletracker.ExplicitNew,
			Path:      &mpCopy,
		})
	}
	return out
}

// OwnsQualifier reports whether the overlay has ever made a claim on q,
// even if that claim has since been reset.
func (o *Overlay) OwnsQualifier(q string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owned[q]
}

// LookUpQualifier checks the override table first, falling through to the
// parent tracker's snapshot on miss. An active override makes its
// qualifier explicit even if the parent has never seen the file.
func (o *Overlay) LookUpQualifier(q string) moduletracker.LookupResult {
	o.mu.RLock()
	mp, ok := o.byQualifier[q]
	o.mu.RUnlock()
	if ok {
		return moduletracker.LookupResult{Kind: moduletracker.FoundExplicit, Path: mp}
	}
	return o.parent.LookUpQualifier(q)
}

// CodeOfModulePath returns mp's overlaid content if one was registered,
// otherwise falls through to the parent tracker.
func (o *Overlay) CodeOfModulePath(mp modulepath.ModulePath) (string, error) {
	o.mu.RLock()
	content, ok := o.overrides[mp.AbsolutePath()]
	o.mu.RUnlock()
	if ok {
		return content, nil
	}
	return o.parent.CodeOfModulePath(mp)
}
