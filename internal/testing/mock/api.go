package mock

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"signflow/internal/crm"
	"signflow/pkg/logging"
)

// apiRouter serves the workspace-scoped REST API over the store.
type apiRouter struct {
	store *Store
	token string
}

func (a *apiRouter) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Route("/api/ws/{wsID}", func(r chi.Router) {
		r.Use(a.authenticate)
		r.Use(a.workspace)

		r.Route("/agreement-templates", func(r chi.Router) {
			r.Get("/", a.searchTemplates)
			r.Post("/", a.createTemplate)
			r.Get("/{id}", a.getTemplate)
			r.Put("/{id}", a.updateTemplate)
			r.Delete("/{id}", a.deleteTemplate)
		})
		r.Route("/agreements", func(r chi.Router) {
			r.Post("/", a.createAgreement)
			r.Get("/{id}", a.getAgreement)
			r.Patch("/{id}", a.patchAgreement)
			r.Route("/{id}/signers/{index}/link", func(r chi.Router) {
				r.Post("/", a.issueLink)
				r.Get("/", a.getLink)
				r.Post("/regenerate", a.regenerateLink)
			})
		})
		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", a.searchContacts)
			r.Post("/", a.createContact)
		})
	})
	return r
}

func (a *apiRouter) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug("FakeCRM", "%s %s -> %d", r.Method, r.URL.Path, ww.Status())
	})
}

// authenticate requires the configured bearer token. Without a configured
// token every request is accepted.
func (a *apiRouter) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || got != a.token {
				writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *apiRouter) workspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ws := chi.URLParam(r, "wsID"); ws != a.store.WorkspaceID() {
			writeError(w, http.StatusNotFound, "unknown workspace "+ws)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

type items[T any] struct {
	Items []T `json:"items"`
}

func (a *apiRouter) searchTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, items[crm.Template]{Items: a.store.SearchTemplates(r.URL.Query().Get("search"))})
}

func (a *apiRouter) createTemplate(w http.ResponseWriter, r *http.Request) {
	var t crm.Template
	if !decode(w, r, &t) {
		return
	}
	created, err := a.store.CreateTemplate(t)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *apiRouter) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := a.store.GetTemplate(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *apiRouter) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var t crm.Template
	if !decode(w, r, &t) {
		return
	}
	t.ID = chi.URLParam(r, "id")
	updated, err := a.store.UpdateTemplate(t)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *apiRouter) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteTemplate(chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiRouter) createAgreement(w http.ResponseWriter, r *http.Request) {
	var ag crm.Agreement
	if !decode(w, r, &ag) {
		return
	}
	created, err := a.store.CreateAgreement(ag)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *apiRouter) getAgreement(w http.ResponseWriter, r *http.Request) {
	ag, err := a.store.GetAgreement(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

func (a *apiRouter) patchAgreement(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if !decode(w, r, &patch) {
		return
	}
	ag, err := a.store.PatchAgreement(chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

func signerIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "signer index must be an integer")
		return 0, false
	}
	return i, true
}

func (a *apiRouter) issueLink(w http.ResponseWriter, r *http.Request) {
	i, ok := signerIndex(w, r)
	if !ok {
		return
	}
	link, err := a.store.IssueLink(chi.URLParam(r, "id"), i)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (a *apiRouter) regenerateLink(w http.ResponseWriter, r *http.Request) {
	i, ok := signerIndex(w, r)
	if !ok {
		return
	}
	link, err := a.store.RegenerateLink(chi.URLParam(r, "id"), i)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (a *apiRouter) getLink(w http.ResponseWriter, r *http.Request) {
	i, ok := signerIndex(w, r)
	if !ok {
		return
	}
	link, err := a.store.GetLink(chi.URLParam(r, "id"), i)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (a *apiRouter) searchContacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, items[crm.Contact]{Items: a.store.SearchContacts(r.URL.Query().Get("search"))})
}

func (a *apiRouter) createContact(w http.ResponseWriter, r *http.Request) {
	var c crm.Contact
	if !decode(w, r, &c) {
		return
	}
	created, err := a.store.CreateContact(c)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
