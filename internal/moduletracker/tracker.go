package moduletracker

import (
	"os"

	"buildtrack/internal/modulepath"
)

// strategy is the common shape shared by the eager and lazy discovery
// flavors. A ModuleTracker is constructed with one concrete strategy and
// is otherwise identical regardless of which.
type strategy interface {
	// resolveQualifier performs on-demand discovery for a qualifier not
	// yet present in the explicit table. Eager's strategy always returns
	// nil, since NewEagerTracker seeds every qualifier at construction.
	resolveQualifier(q string) []modulepath.ModulePath
	// shouldSkip reports whether an incremental event for qualifier q
	// should be dropped without updating any table (the lazy tracker
	// ignores events for qualifiers with no cached resolution in its
	// finder; eager never skips).
	shouldSkip(q string) bool
	// invalidate drops any cached discovery state for q and its
	// ancestors (a no-op for eager).
	invalidate(q string)
	// classifyAbsolute resolves an absolute filesystem path against the
	// strategy's finder configuration.
	classifyAbsolute(absPath string) (*modulepath.ModulePath, bool)
}

func classifyAgainst(f *modulepath.Finder, absPath string) (*modulepath.ModulePath, bool) {
	root, ok := f.OwningRoot(absPath)
	if !ok {
		return nil, false
	}
	return f.ClassifyAbsolute(root, absPath)
}

// ModuleTracker maps dotted qualifiers to module paths. Construct one with
// NewEagerTracker or NewLazyTracker.
type ModuleTracker struct {
	explicit  *explicitTable
	implicit  *implicitTable
	strat     strategy
	overrides map[string]string // AbsolutePath() -> in-memory content
	updatesCh chan ModuleUpdate
}

const updatesChanBuffer = 256

func newTracker(strat strategy, overrides map[string]string) *ModuleTracker {
	if overrides == nil {
		overrides = make(map[string]string)
	}
	return &ModuleTracker{
		explicit:  newExplicitTable(),
		implicit:  newImplicitTable(),
		strat:     strat,
		overrides: overrides,
		updatesCh: make(chan ModuleUpdate, updatesChanBuffer),
	}
}

// eagerStrategy backs a tracker whose explicit table is fully seeded at
// construction; there is nothing left to discover on demand.
type eagerStrategy struct {
	finder *modulepath.EagerFinder
}

func (s eagerStrategy) resolveQualifier(string) []modulepath.ModulePath { return nil }

func (s eagerStrategy) shouldSkip(string) bool { return false }

func (s eagerStrategy) invalidate(string) {}

func (s eagerStrategy) classifyAbsolute(p string) (*modulepath.ModulePath, bool) {
	return classifyAgainst(s.finder.Finder, p)
}

// NewEagerTracker builds a ModuleTracker by crawling every search root up
// front via finder and seeding both tables from the result.
func NewEagerTracker(finder *modulepath.EagerFinder, overrides map[string]string) *ModuleTracker {
	t := newTracker(eagerStrategy{finder: finder}, overrides)
	for _, mp := range finder.All() {
		t.explicit.applyNewOrChanged(mp)
		t.implicit.record(mp)
	}
	return t
}

// lazyStrategy backs a tracker whose explicit table is populated only as
// qualifiers are looked up, delegating discovery to a modulepath.LazyFinder.
type lazyStrategy struct {
	finder *modulepath.LazyFinder
}

func (s lazyStrategy) resolveQualifier(q string) []modulepath.ModulePath { return s.finder.Resolve(q) }

func (s lazyStrategy) shouldSkip(q string) bool { return !s.finder.Cached(q) }

func (s lazyStrategy) invalidate(q string) { s.finder.Invalidate(q) }

func (s lazyStrategy) classifyAbsolute(p string) (*modulepath.ModulePath, bool) {
	return classifyAgainst(s.finder.Finder, p)
}

// NewLazyTracker builds a ModuleTracker that never crawls; qualifiers are
// resolved the first time they are looked up or touched by an incremental
// event for a qualifier it has already been asked about.
func NewLazyTracker(finder *modulepath.LazyFinder, overrides map[string]string) *ModuleTracker {
	return newTracker(lazyStrategy{finder: finder}, overrides)
}

// LookUpQualifier resolves q, discovering it on demand if the tracker's
// strategy supports that and the explicit table doesn't already have an
// entry.
func (t *ModuleTracker) LookUpQualifier(q string) LookupResult {
	if list, ok := t.explicit.get(q); ok {
		return LookupResult{Kind: FoundExplicit, Path: list[0]}
	}
	if winners := t.strat.resolveQualifier(q); len(winners) > 0 {
		for _, mp := range winners {
			t.explicit.applyNewOrChanged(mp)
			t.implicit.record(mp)
		}
		if list, ok := t.explicit.get(q); ok {
			return LookupResult{Kind: FoundExplicit, Path: list[0]}
		}
	}
	if t.implicit.isImportable(q) {
		return LookupResult{Kind: FoundImplicit}
	}
	return LookupResult{Kind: NotFound}
}

// QualifierOfPath resolves an absolute filesystem path to the qualifier
// the tracker knows it under. A path outside every search root, failing
// the finder's file predicate, or resolving to no tracked module yields
// a *ModuleNotTrackedError — a structured response, not an abort.
func (t *ModuleTracker) QualifierOfPath(absPath string) (string, error) {
	mp, ok := t.strat.classifyAbsolute(absPath)
	if !ok {
		return "", &ModuleNotTrackedError{Path: absPath}
	}
	if res := t.LookUpQualifier(mp.Qualifier); res.Kind == NotFound {
		return "", &ModuleNotTrackedError{Path: absPath}
	}
	return mp.Qualifier, nil
}

// TypeCheckEligibility reports whether q's winning module path opts into
// type checking. found is false if q has no explicit entry.
func (t *ModuleTracker) TypeCheckEligibility(q string) (eligible, found bool) {
	list, ok := t.explicit.get(q)
	if !ok {
		return false, false
	}
	return list[0].Raw.ShouldTypeCheck, true
}

// CodeOfModulePath returns mp's source content: an in-memory override if
// one was registered, otherwise the file's on-disk content.
func (t *ModuleTracker) CodeOfModulePath(mp modulepath.ModulePath) (string, error) {
	if content, ok := t.overrides[mp.AbsolutePath()]; ok {
		return content, nil
	}
	data, err := os.ReadFile(mp.AbsolutePath())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ApplyEvents folds a batch of raw filesystem events into the tracker's
// tables and returns the structured update stream for the batch: every
// ExplicitUpdate precedes every ImplicitUpdate, and each qualifier
// contributes at most one of either per batch.
func (t *ModuleTracker) ApplyEvents(events []RawFileEvent) []ModuleUpdate {
	pendingExplicit := make(map[string]ExplicitUpdate)
	explicitOrder := make([]string, 0, len(events))
	touchedThisBatch := make(map[string]bool)

	pendingImplicit := make(map[string]ImplicitUpdate)
	implicitOrder := make([]string, 0, len(events))

	for _, ev := range events {
		q := ev.Path.Qualifier
		if t.strat.shouldSkip(q) {
			t.strat.invalidate(q)
			continue
		}
		t.strat.invalidate(q)

		var upd ExplicitUpdate
		var observable bool
		switch ev.Kind {
		case NewOrChanged:
			upd, observable = t.explicit.applyNewOrChanged(ev.Path)
		case Removed:
			upd, observable = t.explicit.applyRemove(ev.Path)
		}

		var parentQ string
		var transitioned bool
		var implicitKind ImplicitUpdateKind
		if ev.Kind == NewOrChanged {
			parentQ, transitioned = t.implicit.record(ev.Path)
			implicitKind = ImplicitNew
		} else {
			parentQ, transitioned = t.implicit.unrecord(ev.Path)
			implicitKind = ImplicitDelete
		}
		if transitioned {
			if _, seen := pendingImplicit[parentQ]; !seen {
				implicitOrder = append(implicitOrder, parentQ)
			}
			pendingImplicit[parentQ] = ImplicitUpdate{Qualifier: parentQ, Kind: implicitKind}
		}

		if !observable {
			continue
		}
		touchedThisBatch[upd.Qualifier] = true
		if prev, ok := pendingExplicit[upd.Qualifier]; ok {
			pendingExplicit[upd.Qualifier] = reduceExplicit(upd.Qualifier, prev, upd)
		} else {
			pendingExplicit[upd.Qualifier] = upd
			explicitOrder = append(explicitOrder, upd.Qualifier)
		}
	}

	out := make([]ModuleUpdate, 0, len(explicitOrder)+len(implicitOrder))
	for _, q := range explicitOrder {
		u := pendingExplicit[q]
		out = append(out, ModuleUpdate{Explicit: &u})
	}
	for _, q := range implicitOrder {
		if touchedThisBatch[q] {
			continue
		}
		u := pendingImplicit[q]
		out = append(out, ModuleUpdate{Implicit: &u})
	}

	for _, u := range out {
		select {
		case t.updatesCh <- u:
		default:
		}
	}
	return out
}

// Updates returns the channel every ApplyEvents batch is also published
// to, for a consumer that wants to observe the stream asynchronously
// instead of calling ApplyEvents directly (e.g. an external poller
// asking "what changed since I last looked"). The send never blocks:
// updates that arrive while the channel's buffer is full are dropped
// from the channel (ApplyEvents still returns them).
func (t *ModuleTracker) Updates() <-chan ModuleUpdate {
	return t.updatesCh
}
