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

// MDBListSource aggregates multiple ratings providers behind a single
// MDBList API call, keyed by IMDb ID.
type MDBListSource struct {
	httpSource
	apiKey string
}

// NewMDBListSource builds an MDBList Fetcher.
func NewMDBListSource(apiKey string, rps float64, burst int, c cache.Cacher) *MDBListSource {
	return &MDBListSource{httpSource: newHTTPSource("mdblist", rps, burst, c), apiKey: apiKey}
}

func (s *MDBListSource) Name() string { return "mdblist" }

type mdblistRating struct {
	Source string  `json:"source"`
	Value  float64 `json:"value"`
}

type mdblistResponse struct {
	Ratings []mdblistRating `json:"ratings"`
}

func (s *MDBListSource) Fetch(ctx context.Context, item catalog.ItemMetadata, hints Hints) (SourceResult, error) {
	if hints.ImdbID == "" {
		return SourceResult{}, ErrNotFound
	}

	var cached mdblistResponse
	if hit, err := s.cache.Get(ctx, hints.ImdbID, &cached); err == nil && hit {
		return mdblistToResult(cached), nil
	}

	u := fmt.Sprintf("https://mdblist.com/api/?apikey=%s&i=%s", url.QueryEscape(s.apiKey), url.QueryEscape(hints.ImdbID))
	body, err := s.get(ctx, u)
	if err != nil {
		return SourceResult{}, err
	}

	var parsed mdblistResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SourceResult{}, apperr.New("mdblist.Fetch", apperr.SourceInvalidResponse, err)
	}
	if len(parsed.Ratings) == 0 {
		return SourceResult{}, ErrNotFound
	}

	_ = s.cache.Set(ctx, hints.ImdbID, parsed, 0)
	return mdblistToResult(parsed), nil
}

func mdblistToResult(parsed mdblistResponse) SourceResult {
	out := make([]Rating, 0, len(parsed.Ratings))
	for _, r := range parsed.Ratings {
		if r.Value <= 0 {
			continue
		}
		out = append(out, Rating{Source: "mdblist_" + r.Source, ScoreNormalized: r.Value, Raw: fmt.Sprintf("%.1f", r.Value)})
	}
	return SourceResult{Ratings: out}
}
