// Package enrichment implements the external rating/awards clients: OMDb,
// TMDb, AniDB, MyAnimeList, Crunchyroll, and MDBList. Each is a Fetcher
// registered into a priority-ordered Registry, so the Attribute Resolver
// never hard-codes a source by name — new sources are additive.
package enrichment

import (
	"context"
	"errors"

	"github.com/aphrodite-badges/aphrodite/internal/catalog"
)

// Hints carries cheap, already-known identifiers that let a Fetcher skip a
// title search when possible.
type Hints struct {
	ImdbID   string
	TmdbID   string
	AniDBID  string
	AniListID string
	MALID    string
	Title    string
	Year     int
	IsAnime  bool
}

// HintsFromItem extracts Hints from catalog-provided metadata.
func HintsFromItem(item catalog.ItemMetadata) Hints {
	h := Hints{
		ImdbID:    item.ProviderIDs["Imdb"],
		TmdbID:    item.ProviderIDs["Tmdb"],
		AniDBID:   item.ProviderIDs["AniDB"],
		AniListID: item.ProviderIDs["AniList"],
		MALID:     item.ProviderIDs["MyAnimeList"],
		Title:     item.Name,
		Year:      item.ProductionYear,
	}
	for _, g := range item.Genres {
		if g == "Anime" {
			h.IsAnime = true
		}
	}
	return h
}

// Rating is one normalized score from one source.
type Rating struct {
	Source         string
	ScoreNormalized float64 // 0-100 or 0-10 per source class, per §4.3
	Raw            string
}

// SourceResult is what a successful fetch yields: zero or more ratings and
// zero or more award symbols.
type SourceResult struct {
	Ratings []Rating
	Awards  []string
}

// ErrNotFound signals the source has no data for this item; distinct from
// a transport error so the resolver can record it without retry.
var ErrNotFound = errors.New("enrichment: not found")

// Fetcher is the capability every enrichment source implements.
type Fetcher interface {
	// Name is the stable source identifier used in provenance and cache
	// keys, e.g. "omdb".
	Name() string
	// Fetch resolves a SourceResult for item, or ErrNotFound, or an
	// *apperr.Error carrying one of the source_* kinds.
	Fetch(ctx context.Context, item catalog.ItemMetadata, hints Hints) (SourceResult, error)
}

// Registry holds the enabled Fetchers in priority order (highest first).
// Additive: RegisterFetcher never mutates existing entries.
type Registry struct {
	fetchers []Fetcher
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterFetcher appends f to the priority-ordered list.
func (r *Registry) RegisterFetcher(f Fetcher) {
	r.fetchers = append(r.fetchers, f)
}

// Fetchers returns the registered set in registration order.
func (r *Registry) Fetchers() []Fetcher {
	return r.fetchers
}

// Get returns the fetcher registered under name, if any.
func (r *Registry) Get(name string) (Fetcher, bool) {
	for _, f := range r.fetchers {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}
