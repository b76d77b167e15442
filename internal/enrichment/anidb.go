package enrichment

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aphrodite-badges/aphrodite/internal/cache"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
)

// AniDBSource fetches anime ratings, preferring an existing AniDB ID on
// the item and otherwise searching by cleaned title. AniDB's API terms
// require at least 1s between requests regardless of the shared token
// bucket, so minGap is fixed here independent of configured rps.
type AniDBSource struct {
	httpSource
	clientName string
	clientVer  int
}

// NewAniDBSource builds an AniDB Fetcher. rps/burst are still honored as an
// upper bound; the additional 1s floor is enforced on top.
func NewAniDBSource(clientName string, clientVer int, rps float64, burst int, c cache.Cacher) *AniDBSource {
	s := &AniDBSource{httpSource: newHTTPSource("anidb", rps, burst, c), clientName: clientName, clientVer: clientVer}
	s.minGap = 1 * time.Second
	return s
}

func (s *AniDBSource) Name() string { return "anidb" }

var titleCleanTokens = regexp.MustCompile(`(?i)\b(19|20)\d{2}\b|\bseason\s*\d+\b|\bpart\s*\d+\b|\bvol(ume)?\.?\s*\d+\b`)

// cleanTitle strips year, season, part, and volume markers, per the
// AniDB search contract when no ID is available.
func cleanTitle(title string) string {
	cleaned := titleCleanTokens.ReplaceAllString(title, "")
	return strings.Join(strings.Fields(cleaned), " ")
}

type anidbAnime struct {
	AID    string  `xml:"aid,attr"`
	Rating float64 `json:"rating"`
}

func (s *AniDBSource) Fetch(ctx context.Context, item catalog.ItemMetadata, hints Hints) (SourceResult, error) {
	if !hints.IsAnime && !hasAnimeGenre(item) {
		return SourceResult{}, ErrNotFound
	}

	aid := hints.AniDBID
	cacheKey := aid
	if aid == "" {
		cacheKey = "title:" + cleanTitle(hints.Title)
	}

	var cached anidbAnime
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return anidbToResult(cached), nil
	}

	var body []byte
	var err error
	if aid != "" {
		u := fmt.Sprintf("https://api.anidb.net:9001/httpapi?request=anime&client=%s&clientver=%d&protover=1&aid=%s",
			url.QueryEscape(s.clientName), s.clientVer, url.QueryEscape(aid))
		body, err = s.get(ctx, u)
	} else {
		u := fmt.Sprintf("https://api.anidb.net:9001/httpapi?request=anime&client=%s&clientver=%d&protover=1&aname=%s",
			url.QueryEscape(s.clientName), s.clientVer, url.QueryEscape(cleanTitle(hints.Title)))
		body, err = s.get(ctx, u)
	}
	if err != nil {
		return SourceResult{}, err
	}

	parsed, ok := parseAniDBRating(body)
	if !ok {
		return SourceResult{}, ErrNotFound
	}

	_ = s.cache.Set(ctx, cacheKey, parsed, 0)
	return anidbToResult(parsed), nil
}

// parseAniDBRating extracts the permanent rating value from AniDB's XML
// response without pulling in a full XML dependency — the rating element
// is a single predictable tag.
func parseAniDBRating(body []byte) (anidbAnime, bool) {
	re := regexp.MustCompile(`<permanent[^>]*>([\d.]+)</permanent>`)
	m := re.FindSubmatch(body)
	if m == nil {
		return anidbAnime{}, false
	}
	v, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return anidbAnime{}, false
	}
	return anidbAnime{Rating: v}, true
}

func anidbToResult(a anidbAnime) SourceResult {
	return SourceResult{Ratings: []Rating{{Source: "anidb", ScoreNormalized: a.Rating, Raw: fmt.Sprintf("%.2f", a.Rating)}}}
}

func hasAnimeGenre(item catalog.ItemMetadata) bool {
	for _, g := range item.Genres {
		if strings.EqualFold(g, "anime") {
			return true
		}
	}
	return false
}
