package enrichment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/cache"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
)

// OMDbSource fetches IMDb/Rotten Tomatoes/Metacritic ratings in one call,
// keyed by IMDb ID.
type OMDbSource struct {
	httpSource
	apiKey string
}

// NewOMDbSource builds an OMDb Fetcher. rps/burst bound the shared token
// bucket; c is the per-source cache.
func NewOMDbSource(apiKey string, rps float64, burst int, c cache.Cacher) *OMDbSource {
	return &OMDbSource{httpSource: newHTTPSource("omdb", rps, burst, c), apiKey: apiKey}
}

func (s *OMDbSource) Name() string { return "omdb" }

type omdbRating struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

type omdbResponse struct {
	Response string       `json:"Response"`
	Error    string       `json:"Error"`
	Ratings  []omdbRating `json:"Ratings"`
}

func (s *OMDbSource) Fetch(ctx context.Context, item catalog.ItemMetadata, hints Hints) (SourceResult, error) {
	if hints.ImdbID == "" {
		return SourceResult{}, ErrNotFound
	}

	var cached omdbResponse
	if hit, err := s.cache.Get(ctx, hints.ImdbID, &cached); err == nil && hit {
		return omdbToResult(cached)
	}

	u := fmt.Sprintf("https://www.omdbapi.com/?apikey=%s&i=%s", url.QueryEscape(s.apiKey), url.QueryEscape(hints.ImdbID))
	body, err := s.get(ctx, u)
	if err != nil {
		return SourceResult{}, err
	}

	var parsed omdbResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SourceResult{}, apperr.New("omdb.Fetch", apperr.SourceInvalidResponse, err)
	}
	if parsed.Response == "False" {
		return SourceResult{}, ErrNotFound
	}

	_ = s.cache.Set(ctx, hints.ImdbID, parsed, 0)
	return omdbToResult(parsed)
}

func omdbToResult(parsed omdbResponse) (SourceResult, error) {
	var ratings []Rating
	for _, r := range parsed.Ratings {
		switch r.Source {
		case "Internet Movie Database":
			if v, ok := parseLeadingFloat(r.Value); ok {
				ratings = append(ratings, Rating{Source: "imdb", ScoreNormalized: v * 10, Raw: r.Value})
			}
		case "Rotten Tomatoes":
			if v, ok := parseLeadingFloat(strings.TrimSuffix(r.Value, "%")); ok {
				ratings = append(ratings, Rating{Source: "rotten_tomatoes", ScoreNormalized: v, Raw: r.Value})
			}
		case "Metacritic":
			if v, ok := parseLeadingFloat(strings.Split(r.Value, "/")[0]); ok {
				ratings = append(ratings, Rating{Source: "metacritic", ScoreNormalized: v, Raw: r.Value})
			}
		}
	}
	return SourceResult{Ratings: ratings}, nil
}

func parseLeadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
