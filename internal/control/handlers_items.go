package control

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (rt *Router) itemsRevert(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	if err := rt.reverter.Revert(r.Context(), itemID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"reverted": true})
}

func (rt *Router) itemsRestoreAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemIDs []string `json:"item_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "config_invalid", "malformed request body")
		return
	}
	results := rt.reverter.RestoreAll(r.Context(), req.ItemIDs)
	writeJSON(w, r, http.StatusOK, results)
}
