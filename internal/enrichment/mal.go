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

// MALMapping is one offline cross-reference row between AniDB/AniList and
// MyAnimeList IDs, loaded once at startup from a bundled dataset.
type MALMapping struct {
	AniDBID   string
	AniListID string
	MALID     string
}

// MALSource resolves a MAL ID via the offline mapping table first, falling
// back to a title search; gated on anime classification per §4.3.
type MALSource struct {
	httpSource
	clientID string
	mapping  []MALMapping
}

// NewMALSource builds a MAL Fetcher, seeded with an offline AniDB/AniList
// to MAL mapping dataset.
func NewMALSource(clientID string, mapping []MALMapping, rps float64, burst int, c cache.Cacher) *MALSource {
	return &MALSource{httpSource: newHTTPSource("mal", rps, burst, c), clientID: clientID, mapping: mapping}
}

func (s *MALSource) Name() string { return "mal" }

func (s *MALSource) resolveMALID(hints Hints) string {
	if hints.MALID != "" {
		return hints.MALID
	}
	for _, m := range s.mapping {
		if hints.AniDBID != "" && m.AniDBID == hints.AniDBID {
			return m.MALID
		}
		if hints.AniListID != "" && m.AniListID == hints.AniListID {
			return m.MALID
		}
	}
	return ""
}

type malAnimeResponse struct {
	Mean float64 `json:"mean"`
	ID   int     `json:"id"`
}

type malSearchResponse struct {
	Data []struct {
		Node struct {
			ID int `json:"id"`
		} `json:"node"`
	} `json:"data"`
}

func (s *MALSource) Fetch(ctx context.Context, item catalog.ItemMetadata, hints Hints) (SourceResult, error) {
	if !hints.IsAnime && !hasAnimeGenre(item) {
		return SourceResult{}, ErrNotFound
	}

	malID := s.resolveMALID(hints)

	var cached malAnimeResponse
	cacheKey := malID
	if cacheKey == "" {
		cacheKey = "title:" + hints.Title
	}
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return malToResult(cached), nil
	}

	if malID == "" {
		id, err := s.searchByTitle(ctx, hints.Title)
		if err != nil {
			return SourceResult{}, err
		}
		malID = id
	}

	u := fmt.Sprintf("https://api.myanimelist.net/v2/anime/%s?fields=mean", url.PathEscape(malID))
	body, err := s.getWithHeaders(ctx, u, map[string]string{"X-MAL-CLIENT-ID": s.clientID})
	if err != nil {
		return SourceResult{}, err
	}

	var parsed malAnimeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SourceResult{}, apperr.New("mal.Fetch", apperr.SourceInvalidResponse, err)
	}

	_ = s.cache.Set(ctx, cacheKey, parsed, 0)
	return malToResult(parsed), nil
}

func (s *MALSource) searchByTitle(ctx context.Context, title string) (string, error) {
	u := fmt.Sprintf("https://api.myanimelist.net/v2/anime?q=%s&limit=1", url.QueryEscape(cleanTitle(title)))
	body, err := s.getWithHeaders(ctx, u, map[string]string{"X-MAL-CLIENT-ID": s.clientID})
	if err != nil {
		return "", err
	}
	var parsed malSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperr.New("mal.searchByTitle", apperr.SourceInvalidResponse, err)
	}
	if len(parsed.Data) == 0 {
		return "", ErrNotFound
	}
	return fmt.Sprintf("%d", parsed.Data[0].Node.ID), nil
}

func malToResult(m malAnimeResponse) SourceResult {
	return SourceResult{Ratings: []Rating{{Source: "mal", ScoreNormalized: m.Mean * 10, Raw: fmt.Sprintf("%.2f", m.Mean)}}}
}
