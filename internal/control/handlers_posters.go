package control

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/badges"
)

type replaceRequest struct {
	SourceRef      string          `json:"source_ref"`
	BadgeTypesMask badges.TypeMask `json:"badges_mask"`
}

type uploadCustomRequest struct {
	DataBase64  string          `json:"data_base64"`
	ApplyBadges bool            `json:"apply_badges"`
	BadgesMask  badges.TypeMask `json:"badges_mask"`
}

func (rt *Router) postersFetchSources(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	writeJSON(w, r, http.StatusOK, rt.sources.list(itemID))
}

func (rt *Router) postersReplace(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	var req replaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "config_invalid", "malformed request body")
		return
	}

	data, mime, err := rt.sources.resolve(r.Context(), itemID, req.SourceRef)
	if err != nil {
		writeError(w, r, err)
		return
	}

	jobID, err := rt.engine.SubmitReplace(r.Context(), itemID, data, mime, req.BadgeTypesMask)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, jobIDResponse{JobID: jobID})
}

func (rt *Router) postersUploadCustom(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	var req uploadCustomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "config_invalid", "malformed request body")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.DataBase64)
	if err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, string(apperr.ImageInvalid), "data_base64 is not valid base64")
		return
	}

	mime := http.DetectContentType(data)
	jobID, err := rt.engine.SubmitUploadCustom(r.Context(), itemID, data, mime, req.ApplyBadges, req.BadgesMask)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, jobIDResponse{JobID: jobID})
}
