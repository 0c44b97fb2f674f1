// Package moduletracker maps dotted qualifiers to a prioritized list of
// module paths across one or more search roots. It supports both eager
// (crawl-once) and lazy (on-demand, cached) discovery behind a common Api,
// distinguishes explicit modules from implicit namespace packages, and
// produces a structured update stream on filesystem events.
package moduletracker

import (
	"fmt"

	"buildtrack/internal/modulepath"
)

// RawEventKind is the kind of one atomic filesystem event fed into the
// tracker.
type RawEventKind int

const (
	// NewOrChanged means the file at Path was created or modified.
	NewOrChanged RawEventKind = iota
	// Removed means the file at Path was deleted.
	Removed
)

// RawFileEvent is one atomic filesystem event, already resolved to a
// ModulePath by the caller's Finder.
type RawFileEvent struct {
	Kind RawEventKind
	Path modulepath.ModulePath
}

// ExplicitUpdateKind distinguishes the three observable outcomes of an
// explicit-table update.
type ExplicitUpdateKind int

const (
	ExplicitNew ExplicitUpdateKind = iota
	ExplicitChanged
	ExplicitDelete
)

func (k ExplicitUpdateKind) String() string {
	switch k {
	case ExplicitNew:
		return "New"
	case ExplicitChanged:
		return "Changed"
	case ExplicitDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// ExplicitUpdate reports the net effect of one or more raw events on one
// qualifier's explicit-table entry. Path is nil for ExplicitDelete.
type ExplicitUpdate struct {
	Qualifier string
	Kind      ExplicitUpdateKind
	Path      *modulepath.ModulePath
}

// ImplicitUpdateKind distinguishes the two observable transitions of a
// namespace package's importability.
type ImplicitUpdateKind int

const (
	ImplicitNew ImplicitUpdateKind = iota
	ImplicitDelete
)

func (k ImplicitUpdateKind) String() string {
	if k == ImplicitNew {
		return "NewImplicit"
	}
	return "Delete"
}

// ImplicitUpdate reports a namespace package transitioning between
// importable and absent.
type ImplicitUpdate struct {
	Qualifier string
	Kind      ImplicitUpdateKind
}

// ModuleUpdate is one entry of the structured update stream the tracker
// produces for a batch of filesystem events: within a batch, every
// ExplicitUpdate precedes every ImplicitUpdate.
type ModuleUpdate struct {
	Explicit *ExplicitUpdate
	Implicit *ImplicitUpdate
}

// LookupKind distinguishes the three possible outcomes of looking up a
// qualifier.
type LookupKind int

const (
	// NotFound means neither an explicit module nor an importable
	// namespace package exists for the qualifier.
	NotFound LookupKind = iota
	// FoundExplicit means the qualifier resolves to a winning ModulePath.
	FoundExplicit
	// FoundImplicit means the qualifier is a namespace package: a
	// directory with at least one explicit descendant, but no file of
	// its own.
	FoundImplicit
)

// LookupResult is the outcome of LookUpQualifier.
type LookupResult struct {
	Kind LookupKind
	Path modulepath.ModulePath // valid iff Kind == FoundExplicit
}

// InvariantViolation reports internal state inconsistency: an illegal pair
// of updates folded within one batch. It is fatal and
// indicates a bug in the caller's event stream, so callers should expect
// a panic carrying this value rather than handle it as a normal error.
type InvariantViolation struct {
	Qualifier string
	Prev      ExplicitUpdateKind
	Next      ExplicitUpdateKind
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("moduletracker: illegal update pair for %q: %s followed by %s", e.Qualifier, e.Prev, e.Next)
}

// ModuleNotTrackedError reports a query about a path the tracker has no
// record of. Never fatal: it is a structured response, not an abort.
type ModuleNotTrackedError struct {
	Path string
}

func (e *ModuleNotTrackedError) Error() string {
	return fmt.Sprintf("moduletracker: not tracked: %s", e.Path)
}
