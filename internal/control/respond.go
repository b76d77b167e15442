// Package control exposes the Job Engine, Revert/Tag Manager, and Config
// Store over HTTP via a small github.com/go-chi/chi/v5 router. It holds no
// business logic of its own — every handler decodes a request, calls a
// core API, and serializes the result, grounded on the teacher's
// internal/api chi_router.go route-grouping and handlers_helpers.go
// response-envelope shape.
package control

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
)

type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errDetail `json:"error,omitempty"`
}

type errDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(envelope{Data: data})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, _ := apperr.KindOf(err)
	status := statusForKind(kind)
	if kind == "" {
		kind = "internal"
	}
	logging.Ctx(r.Context()).Warn().Err(err).Str("kind", string(kind)).Int("status", status).Msg("control request failed")

	w.Header().Set("Content-Type", "application/json")
	body, _ := json.Marshal(envelope{Error: &errDetail{Kind: string(kind), Message: err.Error()}})
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	logging.Ctx(r.Context()).Warn().Str("kind", kind).Int("status", status).Msg(message)
	w.Header().Set("Content-Type", "application/json")
	body, _ := json.Marshal(envelope{Error: &errDetail{Kind: kind, Message: message}})
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func decodeJSON(r *http.Request, dest any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(dest)
}

// statusForKind maps a stable error kind to an HTTP status, per §7's
// propagation policy: not-found/invalid/busy/rate-limit/cancel kinds are
// 4xx, upstream failures are 502 (504 for timeouts), and storage, render
// and unrecognised kinds are 500.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.ConfigMissing, apperr.CatalogNotFound, apperr.SourceNotFound, apperr.JobNotFound:
		return http.StatusNotFound
	case apperr.ConfigInvalid, apperr.CatalogInvalidResponse, apperr.SourceInvalidResponse,
		apperr.ImageInvalid, apperr.ImageTooLarge, apperr.CannotRevert, apperr.UnknownSymbol:
		return http.StatusBadRequest
	case apperr.CatalogUnauthorized:
		return http.StatusUnauthorized
	case apperr.Busy, apperr.CatalogRateLimited, apperr.SourceRateLimited:
		return http.StatusTooManyRequests
	case apperr.CatalogUnreachable, apperr.SourceUnreachable, apperr.ImageFetchFailed:
		return http.StatusBadGateway
	case apperr.Timeout:
		return http.StatusGatewayTimeout
	case apperr.Cancelled:
		return http.StatusConflict
	case apperr.StorageIO, apperr.StorageConflict, apperr.RenderFailed, apperr.RenderFontMissing, apperr.RenderAssetMissing:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
