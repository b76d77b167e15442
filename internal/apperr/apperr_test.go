package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

func TestKindOf(t *testing.T) {
	err := apperr.New("catalog.GetItem", apperr.CatalogNotFound, errors.New("404"))
	k, ok := apperr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CatalogNotFound, k)

	_, ok = apperr.KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	inner := apperr.New("source.Fetch", apperr.SourceRateLimited, nil)
	wrapped := fmt.Errorf("enrichment: %w", inner)

	k, ok := apperr.KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, apperr.SourceRateLimited, k)
}

func TestIs(t *testing.T) {
	err := apperr.New("job.Submit", apperr.Busy, nil)
	assert.True(t, apperr.Is(err, apperr.Busy))
	assert.False(t, apperr.Is(err, apperr.Timeout))
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind      apperr.Kind
		retryable bool
	}{
		{apperr.CatalogUnreachable, true},
		{apperr.CatalogRateLimited, true},
		{apperr.SourceUnreachable, true},
		{apperr.SourceRateLimited, true},
		{apperr.Timeout, true},
		{apperr.CatalogNotFound, false},
		{apperr.ImageInvalid, false},
		{apperr.CannotRevert, false},
	}
	for _, c := range cases {
		err := apperr.New("op", c.kind, nil)
		assert.Equal(t, c.retryable, apperr.Retryable(err), "kind=%s", c.kind)
	}
	assert.False(t, apperr.Retryable(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	withCause := apperr.New("catalog.GetItem", apperr.CatalogNotFound, errors.New("no such item"))
	assert.Contains(t, withCause.Error(), "catalog.GetItem")
	assert.Contains(t, withCause.Error(), "catalog_not_found")
	assert.Contains(t, withCause.Error(), "no such item")

	noCause := apperr.New("job.Cancel", apperr.Cancelled, nil)
	assert.Equal(t, "job.Cancel: cancelled", noCause.Error())
}
