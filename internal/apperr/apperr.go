// Package apperr defines the stable error-kind identifiers shared across
// Aphrodite's components, so callers can classify a failure without string
// matching on its message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification. Kinds are compared with Is, never
// with string equality on Error().
type Kind string

const (
	ConfigMissing Kind = "config_missing"
	ConfigInvalid Kind = "config_invalid"

	CatalogUnreachable     Kind = "catalog_unreachable"
	CatalogUnauthorized    Kind = "catalog_unauthorized"
	CatalogNotFound        Kind = "catalog_not_found"
	CatalogRateLimited     Kind = "catalog_rate_limited"
	CatalogInvalidResponse Kind = "catalog_invalid_response"

	ImageFetchFailed Kind = "image_fetch_failed"
	ImageInvalid     Kind = "image_invalid"
	ImageTooLarge    Kind = "image_too_large"

	SourceUnreachable     Kind = "source_unreachable"
	SourceRateLimited     Kind = "source_rate_limited"
	SourceNotFound        Kind = "source_not_found"
	SourceInvalidResponse Kind = "source_invalid_response"

	RenderFontMissing  Kind = "render_font_missing"
	RenderAssetMissing Kind = "render_asset_missing"
	RenderFailed       Kind = "render_failed"

	StorageIO       Kind = "storage_io"
	StorageConflict Kind = "storage_conflict"

	Busy           Kind = "busy"
	Timeout        Kind = "timeout"
	Cancelled      Kind = "cancelled"
	CannotRevert   Kind = "cannot_revert"
	UnknownSymbol  Kind = "unknown_symbol"
	JobNotFound    Kind = "job_not_found"
)

// Error wraps an underlying error with a stable Kind for classification by
// callers (the job engine, progress reporting, and the control surface all
// switch on Kind rather than on message text).
type Error struct {
	Kind Kind
	Op   string // component/operation that produced the error, e.g. "catalog.GetItem"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for op with the given kind, wrapping err (which
// may be nil).
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it returns "" and false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Retryable reports whether the classified error kind is worth retrying per
// the job engine's retry policy: network-ish and rate-limit kinds are
// retryable, validation and not-found kinds are not.
func Retryable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case CatalogUnreachable, CatalogRateLimited, SourceUnreachable, SourceRateLimited, Timeout:
		return true
	default:
		return false
	}
}
