package sharedstore

import (
	"encoding/json"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// StaleError reports a persisted handle that was found but no longer
// matches the caller's expected fingerprint (e.g. the search-root
// configuration changed since the handle was saved). Recovered by
// recomputation, like LoadError.
type StaleError struct {
	Namespace   string
	Fingerprint string
}

func (e *StaleError) Error() string {
	return "sharedstore: stale handle for " + e.Namespace + " (fingerprint " + e.Fingerprint + ")"
}

// handleRecord is the persisted shape of a Handle: the set of keys a
// table currently owns, tagged with a caller-supplied fingerprint so a
// later session can tell whether the handle still applies.
type handleRecord struct {
	Fingerprint string   `json:"fingerprint"`
	Keys        []string `json:"keys"`
}

// Handle persists the set of keys a Table currently owns, so an
// incremental session can re-attach to prior state instead of starting
// cold.
type Handle struct {
	store     *Store
	namespace string
}

// NewHandle opens the single-value handle table under namespace.
func NewHandle(store *Store, namespace string) *Handle {
	return &Handle{store: store, namespace: namespace}
}

const handleKey = "__handle__"

// Save persists keys under fingerprint. Callers that can proceed without
// the persisted handle are expected to log and swallow the returned
// error; callers that need to know whether Save succeeded check it.
func (h *Handle) Save(fingerprint string, keys []string) error {
	data, err := json.Marshal(handleRecord{Fingerprint: fingerprint, Keys: keys})
	if err != nil {
		return &LoadError{Namespace: h.namespace, Key: handleKey, Err: err}
	}
	err = sqlitex.Execute(h.store.conn,
		`INSERT OR REPLACE INTO shared_store (namespace, key, value) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{h.namespace, handleKey, data}})
	if err != nil {
		return &LoadError{Namespace: h.namespace, Key: handleKey, Err: err}
	}
	return nil
}

// UnusedReason distinguishes why Load didn't return a reusable set of
// keys.
type UnusedReason int

const (
	// UnusedLoadError means the persisted handle couldn't be read at all.
	UnusedLoadError UnusedReason = iota
	// UnusedStale means the persisted handle's fingerprint doesn't match
	// expectedFingerprint.
	UnusedStale
)

// LoadOutcome is the result of Load: either Keys is populated, or Unused
// names why it wasn't.
type LoadOutcome struct {
	Keys   []string
	Unused *UnusedReason
}

// Load attempts to re-attach to a previously saved handle. It never
// returns an error: on any failure it reports Unused(LoadError) or
// Unused(Stale), and the caller recomputes from scratch.
func (h *Handle) Load(expectedFingerprint string) LoadOutcome {
	var rec handleRecord
	found := false
	err := sqlitex.Execute(h.store.conn,
		`SELECT value FROM shared_store WHERE namespace = ? AND key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{h.namespace, handleKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob := make([]byte, stmt.GetLen("value"))
				stmt.GetBytes("value", blob)
				if uerr := json.Unmarshal(blob, &rec); uerr != nil {
					return uerr
				}
				found = true
				return nil
			},
		})
	if err != nil || !found {
		reason := UnusedLoadError
		return LoadOutcome{Unused: &reason}
	}
	if rec.Fingerprint != expectedFingerprint {
		reason := UnusedStale
		return LoadOutcome{Unused: &reason}
	}
	return LoadOutcome{Keys: rec.Keys}
}
