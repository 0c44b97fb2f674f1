package queryserver

import (
	"net/http"

	"buildtrack/internal/moduletracker"
)

type lookupResponse struct {
	Found     bool   `json:"found"`
	Kind      string `json:"kind"`
	Qualifier string `json:"qualifier"`
	Path      string `json:"path,omitempty"`
	IsStub    bool   `json:"is_stub,omitempty"`
}

func (a *App) handleLookupQualifier(w http.ResponseWriter, r *http.Request) {
	q, ok := requireQualifier(w, r)
	if !ok {
		return
	}
	snap := a.tracker.ReadOnlyView()
	result := snap.LookUpQualifier(q)

	resp := lookupResponse{Qualifier: q}
	switch result.Kind {
	case moduletracker.FoundExplicit:
		resp.Found = true
		resp.Kind = "explicit"
		resp.Path = result.Path.AbsolutePath()
		resp.IsStub = result.Path.IsStub
	case moduletracker.FoundImplicit:
		resp.Found = true
		resp.Kind = "implicit"
	default:
		resp.Found = false
		resp.Kind = "not_found"
	}
	writeJSON(w, http.StatusOK, resp)
}

type eligibilityResponse struct {
	Found    bool `json:"found"`
	Eligible bool `json:"eligible"`
}

func (a *App) handleTypeCheckEligibility(w http.ResponseWriter, r *http.Request) {
	q, ok := requireQualifier(w, r)
	if !ok {
		return
	}
	snap := a.tracker.ReadOnlyView()
	result := snap.LookUpQualifier(q)
	if result.Kind != moduletracker.FoundExplicit {
		writeJSON(w, http.StatusOK, eligibilityResponse{Found: false})
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{Found: true, Eligible: result.Path.Raw.ShouldTypeCheck})
}

type codeResponse struct {
	Found   bool   `json:"found"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a *App) handleCodeOfModulePath(w http.ResponseWriter, r *http.Request) {
	q, ok := requireQualifier(w, r)
	if !ok {
		return
	}
	snap := a.tracker.ReadOnlyView()
	result := snap.LookUpQualifier(q)
	if result.Kind != moduletracker.FoundExplicit {
		writeJSON(w, http.StatusNotFound, codeResponse{Found: false})
		return
	}
	content, err := snap.CodeOfModulePath(result.Path)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, codeResponse{Found: true, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{Found: true, Content: content})
}
