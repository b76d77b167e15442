package enrichment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/cache"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
)

// TMDbSource is used primarily for poster source discovery and, when
// enabled, its own rating.
type TMDbSource struct {
	httpSource
	apiKey   string
	language string
}

// NewTMDbSource builds a TMDb Fetcher scoped to language (e.g. "en-US").
func NewTMDbSource(apiKey, language string, rps float64, burst int, c cache.Cacher) *TMDbSource {
	if language == "" {
		language = "en-US"
	}
	return &TMDbSource{httpSource: newHTTPSource("tmdb", rps, burst, c), apiKey: apiKey, language: language}
}

func (s *TMDbSource) Name() string { return "tmdb" }

type tmdbMovieResponse struct {
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}

func (s *TMDbSource) Fetch(ctx context.Context, item catalog.ItemMetadata, hints Hints) (SourceResult, error) {
	if hints.TmdbID == "" {
		return SourceResult{}, ErrNotFound
	}

	endpointKind := "movie"
	if item.Kind == catalog.KindSeries {
		endpointKind = "tv"
	}

	var cached tmdbMovieResponse
	cacheKey := endpointKind + ":" + hints.TmdbID
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return tmdbToResult(cached), nil
	}

	u := fmt.Sprintf("https://api.themoviedb.org/3/%s/%s?api_key=%s&language=%s",
		endpointKind, url.PathEscape(hints.TmdbID), url.QueryEscape(s.apiKey), url.QueryEscape(s.language))
	body, err := s.get(ctx, u)
	if err != nil {
		return SourceResult{}, err
	}

	var parsed tmdbMovieResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SourceResult{}, apperr.New("tmdb.Fetch", apperr.SourceInvalidResponse, err)
	}
	if parsed.VoteCount == 0 {
		return SourceResult{}, ErrNotFound
	}

	_ = s.cache.Set(ctx, cacheKey, parsed, 0)
	return tmdbToResult(parsed), nil
}

func tmdbToResult(parsed tmdbMovieResponse) SourceResult {
	return SourceResult{Ratings: []Rating{{Source: "tmdb", ScoreNormalized: parsed.VoteAverage * 10, Raw: fmt.Sprintf("%.1f", parsed.VoteAverage)}}}
}
