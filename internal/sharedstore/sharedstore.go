// Package sharedstore implements a persistable key-value table used to
// cache derived values (per-target call graphs, class hierarchies, initial
// callable lists) across incremental analysis sessions. Namespaces are
// prefix-segregated so collisions between tables are impossible by
// construction, and the store itself is an explicit handle threaded
// through the API rather than a hidden global.
package sharedstore

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Store owns the single sqlite connection backing every Table opened
// against it.
type Store struct {
	conn *sqlite.Conn
}

// Open opens (creating if necessary) the sqlite-backed store at path.
func Open(path string) (*Store, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("sharedstore: open %s: %w", path, err)
	}
	if err := sqlitex.ExecuteTransient(conn, `
		CREATE TABLE IF NOT EXISTS shared_store (
			namespace TEXT NOT NULL,
			key       TEXT NOT NULL,
			value     BLOB NOT NULL,
			PRIMARY KEY (namespace, key)
		)`, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sharedstore: create table: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Reset deletes every key under namespace. It is a method on the store
// handle so tests can reset state without touching process globals.
func (s *Store) Reset(namespace string) error {
	return sqlitex.Execute(s.conn, `DELETE FROM shared_store WHERE namespace = ?`, &sqlitex.ExecOptions{
		Args: []any{namespace},
	})
}

// LoadError reports a cached value that could not be read back:
// recovered by recomputation, never fatal.
type LoadError struct {
	Namespace string
	Key       string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("sharedstore: load %s/%s: %v", e.Namespace, e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
