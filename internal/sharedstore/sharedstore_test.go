package sharedstore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.sqlite")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intSerde() Serde[int] {
	return Serde[int]{
		Marshal:   func(v int) ([]byte, error) { return json.Marshal(v) },
		Unmarshal: func(b []byte) (int, error) { var v int; err := json.Unmarshal(b, &v); return v, err },
	}
}

func TestTable_AddGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	tbl, err := NewTable[int](store, "ns1", intSerde(), 0)
	require.NoError(t, err)

	require.NoError(t, tbl.Add("a", 1))
	v, err := tbl.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	mv, ok := tbl.Mem("a")
	require.True(t, ok)
	assert.Equal(t, 1, mv)
}

func TestTable_GetMissingIsLoadError(t *testing.T) {
	store := openTestStore(t)
	tbl, err := NewTable[int](store, "ns1", intSerde(), 0)
	require.NoError(t, err)

	_, err = tbl.Get("missing")
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
}

func TestTable_RemoveBatch(t *testing.T) {
	store := openTestStore(t)
	tbl, err := NewTable[int](store, "ns1", intSerde(), 0)
	require.NoError(t, err)

	require.NoError(t, tbl.Add("a", 1))
	require.NoError(t, tbl.Add("b", 2))
	require.NoError(t, tbl.RemoveBatch([]string{"a"}))

	_, err = tbl.Get("a")
	require.Error(t, err)
	v, err := tbl.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestTable_GetBatch(t *testing.T) {
	store := openTestStore(t)
	tbl, err := NewTable[int](store, "ns1", intSerde(), 0)
	require.NoError(t, err)

	require.NoError(t, tbl.Add("a", 1))
	require.NoError(t, tbl.Add("b", 2))

	values, errs := tbl.GetBatch([]string{"a", "b", "c"})
	assert.Len(t, values, 2)
	assert.Len(t, errs, 1)
	assert.Equal(t, 1, values["a"])
	assert.Equal(t, 2, values["b"])
}

func TestTable_OfAlistToAlist(t *testing.T) {
	store := openTestStore(t)
	tbl, err := NewTable[int](store, "ns1", intSerde(), 0)
	require.NoError(t, err)

	require.NoError(t, tbl.OfAlist(map[string]int{"a": 1, "b": 2, "c": 3}))

	all, err := tbl.ToAlist()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, all)
}

func TestTable_NamespacesAreIsolated(t *testing.T) {
	store := openTestStore(t)
	t1, err := NewTable[int](store, "ns1", intSerde(), 0)
	require.NoError(t, err)
	t2, err := NewTable[int](store, "ns2", intSerde(), 0)
	require.NoError(t, err)

	require.NoError(t, t1.Add("a", 1))
	_, err = t2.Get("a")
	require.Error(t, err)
}

func TestStore_Reset(t *testing.T) {
	store := openTestStore(t)
	tbl, err := NewTable[int](store, "ns1", intSerde(), 0)
	require.NoError(t, err)

	require.NoError(t, tbl.Add("a", 1))
	require.NoError(t, store.Reset("ns1"))

	// A table opened after the reset starts with a cold in-memory front, so
	// it observes the persisted deletion.
	fresh, err := NewTable[int](store, "ns1", intSerde(), 0)
	require.NoError(t, err)
	_, err = fresh.Get("a")
	require.Error(t, err)
}

func TestHandle_SaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	h := NewHandle(store, "ns1")

	require.NoError(t, h.Save("fp1", []string{"a", "b", "c"}))

	outcome := h.Load("fp1")
	require.Nil(t, outcome.Unused)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, outcome.Keys)
}

func TestHandle_LoadMissingDegradesToUnused(t *testing.T) {
	store := openTestStore(t)
	h := NewHandle(store, "ns1")

	outcome := h.Load("fp1")
	require.NotNil(t, outcome.Unused)
	assert.Equal(t, UnusedLoadError, *outcome.Unused)
}

func TestHandle_StaleFingerprintDegradesToUnused(t *testing.T) {
	store := openTestStore(t)
	h := NewHandle(store, "ns1")

	require.NoError(t, h.Save("fp1", []string{"a"}))

	outcome := h.Load("fp2")
	require.NotNil(t, outcome.Unused)
	assert.Equal(t, UnusedStale, *outcome.Unused)
}
