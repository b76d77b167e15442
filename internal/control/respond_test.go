package control

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

func TestStatusForKindKnownKinds(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.ConfigMissing:          http.StatusNotFound,
		apperr.CatalogNotFound:        http.StatusNotFound,
		apperr.SourceNotFound:         http.StatusNotFound,
		apperr.JobNotFound:            http.StatusNotFound,
		apperr.ConfigInvalid:          http.StatusBadRequest,
		apperr.CannotRevert:           http.StatusBadRequest,
		apperr.UnknownSymbol:          http.StatusBadRequest,
		apperr.CatalogUnauthorized:    http.StatusUnauthorized,
		apperr.Busy:                   http.StatusTooManyRequests,
		apperr.CatalogRateLimited:     http.StatusTooManyRequests,
		apperr.SourceRateLimited:      http.StatusTooManyRequests,
		apperr.CatalogUnreachable:     http.StatusBadGateway,
		apperr.SourceUnreachable:      http.StatusBadGateway,
		apperr.ImageFetchFailed:       http.StatusBadGateway,
		apperr.Timeout:                http.StatusGatewayTimeout,
		apperr.Cancelled:              http.StatusConflict,
		apperr.StorageIO:              http.StatusInternalServerError,
		apperr.RenderFailed:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusForKind(kind), "kind=%s", kind)
	}
}

func TestStatusForKindUnknownDefaultsToInternalError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusForKind(apperr.Kind("something_new")))
}

func TestWriteErrorUsesKindStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	writeError(rec, req, apperr.New("jobs.Get", apperr.JobNotFound, nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, string(apperr.JobNotFound), body.Error.Kind)
}

func TestWriteJSONEnvelopesData(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	writeJSON(rec, req, http.StatusOK, map[string]string{"job_id": "abc"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"job_id":"abc"`)
}
