package enrichment

import (
	"context"
	"strings"

	"github.com/aphrodite-badges/aphrodite/internal/catalog"
)

// CrunchyrollAward is one entry in the static local awards dataset:
// Crunchyroll Anime Awards winners/nominees keyed by TMDb ID and title
// variants, since there is no live Crunchyroll awards API.
type CrunchyrollAward struct {
	TmdbID        string
	TitleVariants []string
	Award         string
}

// CrunchyrollSource matches items against a bundled, static dataset —
// there is no rate limit or cache involved since no network call occurs,
// but it still satisfies Fetcher so the resolver can treat it uniformly.
type CrunchyrollSource struct {
	dataset []CrunchyrollAward
}

// NewCrunchyrollSource builds a Fetcher over a static awards dataset.
func NewCrunchyrollSource(dataset []CrunchyrollAward) *CrunchyrollSource {
	return &CrunchyrollSource{dataset: dataset}
}

func (s *CrunchyrollSource) Name() string { return "crunchyroll" }

func (s *CrunchyrollSource) Fetch(ctx context.Context, item catalog.ItemMetadata, hints Hints) (SourceResult, error) {
	for _, entry := range s.dataset {
		if hints.TmdbID != "" && entry.TmdbID == hints.TmdbID {
			return SourceResult{Awards: []string{entry.Award}}, nil
		}
	}
	for _, entry := range s.dataset {
		for _, variant := range entry.TitleVariants {
			if strings.EqualFold(variant, hints.Title) {
				return SourceResult{Awards: []string{entry.Award}}, nil
			}
		}
	}
	return SourceResult{}, ErrNotFound
}
