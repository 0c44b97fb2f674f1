package queryserver

import (
	"database/sql"
	"net/http"

	_ "modernc.org/sqlite"
)

// sharedStoreView is a read-only window onto a SharedStore sqlite file,
// used only to answer diagnostic queries about what's persisted — never
// to write. It opens its own connection via the cgo-free modernc.org/sqlite
// driver, distinct from the zombiezen.com/go/sqlite connection SharedStore
// itself writes through — the same split between a writer driver and a
// reader driver used elsewhere in this codebase's generator/server split.
type sharedStoreView struct {
	db *sql.DB
}

// openSharedStoreView opens path read-only. The file is not touched until
// the first query, so a missing file is not reported here; it surfaces as
// a query error (a 500 from handleSharedStoreKeys), not as an empty view.
func openSharedStoreView(path string) (*sharedStoreView, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &sharedStoreView{db: db}, nil
}

func (v *sharedStoreView) Close() error {
	return v.db.Close()
}

type namespaceKeysResponse struct {
	Namespace string   `json:"namespace"`
	Keys      []string `json:"keys"`
}

// handleSharedStoreKeys lists the keys persisted under a namespace, for
// inspecting what survived from a prior incremental session.
func (a *App) handleSharedStoreKeys(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no shared store configured"})
		return
	}
	ns := r.URL.Query().Get("namespace")
	if ns == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing namespace query param"})
		return
	}

	rows, err := a.store.db.Query(`SELECT key FROM shared_store WHERE namespace = ? ORDER BY key`, ns)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		keys = append(keys, k)
	}
	writeJSON(w, http.StatusOK, namespaceKeysResponse{Namespace: ns, Keys: keys})
}
