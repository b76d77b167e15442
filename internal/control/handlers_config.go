package control

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aphrodite-badges/aphrodite/internal/configstore"
)

type settingValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (rt *Router) configGet(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	values, err := rt.config.GetByCategory(r.Context(), category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, values)
}

func (rt *Router) configSet(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	var req map[string]settingValue
	if err := decodeJSON(r, &req); err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "config_invalid", "malformed request body")
		return
	}
	for key, v := range req {
		if err := rt.config.Set(r.Context(), category, key, configstore.ValueType(v.Type), v.Value); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}
