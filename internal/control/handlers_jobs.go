package control

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/badges"
	"github.com/aphrodite-badges/aphrodite/internal/jobengine"
)

type submitBatchRequest struct {
	ItemIDs        []string        `json:"item_ids"`
	BadgeTypesMask badges.TypeMask `json:"badge_types_mask"`
	Options        jobOptions      `json:"options"`
}

type submitSingleRequest struct {
	ItemID         string          `json:"item_id"`
	BadgeTypesMask badges.TypeMask `json:"badge_types_mask"`
	Options        jobOptions      `json:"options"`
}

type submitRevertRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type jobOptions struct {
	SkipCache bool `json:"skip_cache"`
}

type jobIDResponse struct {
	JobID string `json:"job_id"`
}

func (rt *Router) jobsSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "config_invalid", "malformed request body")
		return
	}
	jobID, err := rt.engine.SubmitBatch(r.Context(), req.ItemIDs, req.BadgeTypesMask, jobengine.Options{SkipCache: req.Options.SkipCache})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, jobIDResponse{JobID: jobID})
}

func (rt *Router) jobsSubmitSingle(w http.ResponseWriter, r *http.Request) {
	var req submitSingleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "config_invalid", "malformed request body")
		return
	}
	jobID, err := rt.engine.SubmitSingle(r.Context(), req.ItemID, req.BadgeTypesMask, jobengine.Options{SkipCache: req.Options.SkipCache})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, jobIDResponse{JobID: jobID})
}

func (rt *Router) jobsSubmitRevert(w http.ResponseWriter, r *http.Request) {
	var req submitRevertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "config_invalid", "malformed request body")
		return
	}
	jobID, err := rt.engine.SubmitRevert(r.Context(), req.ItemIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, jobIDResponse{JobID: jobID})
}

func (rt *Router) jobsGet(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := rt.engine.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

func (rt *Router) jobsList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := rt.engine.ListJobs(r.Context(), status, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, jobs)
}

func (rt *Router) jobsCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ok := rt.engine.Cancel(r.Context(), jobID)
	writeJSON(w, r, http.StatusOK, map[string]bool{"cancelled": ok})
}

// jobsStreamProgress streams ProgressEvent values as newline-delimited JSON
// until the job reaches a terminal status or the client disconnects.
func (rt *Router) jobsStreamProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	events, err := rt.engine.StreamProgress(jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
