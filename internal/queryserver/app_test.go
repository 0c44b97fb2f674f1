package queryserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildtrack/internal/modulepath"
	"buildtrack/internal/moduletracker"
	"buildtrack/internal/sharedstore"
)

func setupTracker(t *testing.T) *moduletracker.ModuleTracker {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("print(1)\n"), 0o644))

	finder := &modulepath.Finder{Roots: []modulepath.SearchRoot{{Index: 0, Dir: root}}}
	ef, err := modulepath.NewEagerFinder(finder)
	require.NoError(t, err)
	return moduletracker.NewEagerTracker(ef, nil)
}

func TestHandleLookupQualifier_Found(t *testing.T) {
	tracker := setupTracker(t)
	app := NewApp(tracker)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/module/lookup?qualifier=a")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body lookupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Found)
	assert.Equal(t, "explicit", body.Kind)
}

func TestHandleLookupQualifier_MissingParam(t *testing.T) {
	tracker := setupTracker(t)
	app := NewApp(tracker)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/module/lookup")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCodeOfModulePath(t *testing.T) {
	tracker := setupTracker(t)
	app := NewApp(tracker)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/module/code?qualifier=a")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body codeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Found)
	assert.Equal(t, "print(1)\n", body.Content)
}

func TestHandleSharedStoreKeys(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.sqlite")
	store, err := sharedstore.Open(dbPath)
	require.NoError(t, err)
	tbl, err := sharedstore.NewTable[int](store, "callgraph", sharedstore.Serde[int]{
		Marshal:   func(v int) ([]byte, error) { return []byte{byte(v)}, nil },
		Unmarshal: func(b []byte) (int, error) { return int(b[0]), nil },
	}, 0)
	require.NoError(t, err)
	require.NoError(t, tbl.Add("//pkg:target", 1))
	require.NoError(t, store.Close())

	tracker := setupTracker(t)
	app := NewApp(tracker)
	withStore, err := app.WithSharedStore(dbPath)
	require.NoError(t, err)

	srv := httptest.NewServer(withStore.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sharedstore/keys?namespace=callgraph")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body namespaceKeysResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"//pkg:target"}, body.Keys)
}

func TestCORS_GrantFollowsConfiguredOrigins(t *testing.T) {
	tracker := setupTracker(t)
	app := NewApp(tracker).WithAllowedOrigins([]string{"http://tools.internal"})
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	get := func(origin string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/module/lookup?qualifier=a", nil)
		require.NoError(t, err)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := get("http://tools.internal")
	defer resp.Body.Close()
	assert.Equal(t, "http://tools.internal", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Values("Vary"), "Origin")

	resp = get("http://evil.example")
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "a disallowed origin gets no grant")

	resp = get("")
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "same-site requests carry no CORS headers")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleCodeOfModulePath_NotFound(t *testing.T) {
	tracker := setupTracker(t)
	app := NewApp(tracker)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/module/code?qualifier=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
