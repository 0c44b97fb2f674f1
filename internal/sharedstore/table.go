package sharedstore

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Serde is the user-supplied serialize/deserialize pair a Table needs to
// move values of one type in and out of persisted storage.
type Serde[V any] struct {
	Marshal   func(V) ([]byte, error)
	Unmarshal func([]byte) (V, error)
}

// Table is a namespaced, cached, persistable key-value table for one
// value type V.
type Table[V any] struct {
	store     *Store
	namespace string
	serde     Serde[V]
	mem       *lru.Cache[string, V]
}

const defaultMemSize = 1024

// NewTable opens a table under namespace within store, backed by an
// in-memory LRU front of size memSize (defaultMemSize if memSize <= 0).
func NewTable[V any](store *Store, namespace string, serde Serde[V], memSize int) (*Table[V], error) {
	if memSize <= 0 {
		memSize = defaultMemSize
	}
	cache, err := lru.New[string, V](memSize)
	if err != nil {
		return nil, err
	}
	return &Table[V]{store: store, namespace: namespace, serde: serde, mem: cache}, nil
}

// Add persists v under k and updates the in-memory front.
func (t *Table[V]) Add(k string, v V) error {
	data, err := t.serde.Marshal(v)
	if err != nil {
		return &LoadError{Namespace: t.namespace, Key: k, Err: err}
	}
	err = sqlitex.Execute(t.store.conn,
		`INSERT OR REPLACE INTO shared_store (namespace, key, value) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{t.namespace, k, data}})
	if err != nil {
		return &LoadError{Namespace: t.namespace, Key: k, Err: err}
	}
	t.mem.Add(k, v)
	return nil
}

// RemoveBatch deletes every key in keys from both the persisted table and
// the in-memory front.
func (t *Table[V]) RemoveBatch(keys []string) error {
	for _, k := range keys {
		err := sqlitex.Execute(t.store.conn,
			`DELETE FROM shared_store WHERE namespace = ? AND key = ?`,
			&sqlitex.ExecOptions{Args: []any{t.namespace, k}})
		if err != nil {
			return &LoadError{Namespace: t.namespace, Key: k, Err: err}
		}
		t.mem.Remove(k)
	}
	return nil
}

// Mem returns k's in-memory value without consulting persisted storage.
func (t *Table[V]) Mem(k string) (V, bool) {
	return t.mem.Get(k)
}

// Get returns k's value, consulting the in-memory front first and falling
// through to persisted storage on a miss.
func (t *Table[V]) Get(k string) (V, error) {
	if v, ok := t.mem.Get(k); ok {
		return v, nil
	}
	var out V
	found := false
	err := sqlitex.Execute(t.store.conn,
		`SELECT value FROM shared_store WHERE namespace = ? AND key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{t.namespace, k},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob := make([]byte, stmt.GetLen("value"))
				stmt.GetBytes("value", blob)
				v, uerr := t.serde.Unmarshal(blob)
				if uerr != nil {
					return uerr
				}
				out = v
				found = true
				return nil
			},
		})
	if err != nil {
		return out, &LoadError{Namespace: t.namespace, Key: k, Err: err}
	}
	if !found {
		return out, &LoadError{Namespace: t.namespace, Key: k, Err: errNotFound}
	}
	t.mem.Add(k, out)
	return out, nil
}

// GetBatch returns every value found for keys, along with a LoadError per
// key that couldn't be read. Missing keys are simply omitted from values.
func (t *Table[V]) GetBatch(keys []string) (values map[string]V, errs []error) {
	values = make(map[string]V, len(keys))
	for _, k := range keys {
		v, err := t.Get(k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[k] = v
	}
	return values, errs
}

// OfAlist bulk-loads entries into the table, overwriting any existing
// values for the same keys.
func (t *Table[V]) OfAlist(entries map[string]V) error {
	for k, v := range entries {
		if err := t.Add(k, v); err != nil {
			return err
		}
	}
	return nil
}

// ToAlist bulk-reads every persisted entry under the table's namespace.
func (t *Table[V]) ToAlist() (map[string]V, error) {
	out := make(map[string]V)
	var firstErr error
	err := sqlitex.Execute(t.store.conn,
		`SELECT key, value FROM shared_store WHERE namespace = ?`,
		&sqlitex.ExecOptions{
			Args: []any{t.namespace},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				k := stmt.GetText("key")
				blob := make([]byte, stmt.GetLen("value"))
				stmt.GetBytes("value", blob)
				v, uerr := t.serde.Unmarshal(blob)
				if uerr != nil {
					if firstErr == nil {
						firstErr = uerr
					}
					return nil
				}
				out[k] = v
				return nil
			},
		})
	if err != nil {
		return nil, &LoadError{Namespace: t.namespace, Err: err}
	}
	if firstErr != nil {
		return out, &LoadError{Namespace: t.namespace, Err: firstErr}
	}
	return out, nil
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errNotFound = sentinelError("not found")
