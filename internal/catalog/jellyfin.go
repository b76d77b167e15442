package catalog

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

// JellyfinClient is the default Client implementation, speaking the
// Jellyfin REST dialect (also accepted by Emby-class servers).
type JellyfinClient struct {
	baseURL    string
	apiKey     string
	userID     string
	httpClient *http.Client
}

var _ Client = (*JellyfinClient)(nil)

// NewJellyfinClient builds a client against baseURL, authenticating with
// apiKey. userID scopes the user-specific endpoints (library/item listing).
func NewJellyfinClient(baseURL, apiKey, userID string) *JellyfinClient {
	return &JellyfinClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		userID:  userID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *JellyfinClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("X-Emby-Client", "Aphrodite")
	req.Header.Set("X-Emby-Device-Name", "Aphrodite")
	req.Header.Set("X-Emby-Device-Id", "aphrodite")
	req.Header.Set("X-Emby-Client-Version", "1.0.0")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// classifyStatus maps a non-2xx response to a Kind. On 429 it sleeps for
// the server's Retry-After hint (capped by ctx) before returning, mirroring
// the enrichment httpSource's 429 handling, so a single rate-limited call
// doesn't immediately burn a job-engine retry attempt.
func (c *JellyfinClient) classifyStatus(ctx context.Context, op string, status int, header http.Header, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		if wait := parseRetryAfter(header.Get("Retry-After")); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return apperr.New(op, apperr.Cancelled, ctx.Err())
			case <-timer.C:
			}
		}
		return apperr.New(op, apperr.CatalogRateLimited, fmt.Errorf("status %d: %s", status, body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.New(op, apperr.CatalogUnauthorized, fmt.Errorf("status %d: %s", status, body))
	case status == http.StatusNotFound:
		return apperr.New(op, apperr.CatalogNotFound, fmt.Errorf("status %d: %s", status, body))
	case status >= 500:
		return apperr.New(op, apperr.CatalogUnreachable, fmt.Errorf("status %d: %s", status, body))
	default:
		return apperr.New(op, apperr.CatalogInvalidResponse, fmt.Errorf("status %d: %s", status, body))
	}
}

// Health pings the server's system info endpoint.
func (c *JellyfinClient) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/System/Info/Public", nil)
	if err != nil {
		return apperr.New("catalog.Health", apperr.CatalogUnreachable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.New("catalog.Health", apperr.CatalogUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return c.classifyStatus(ctx, "catalog.Health", resp.StatusCode, resp.Header, body)
	}
	return nil
}

type viewsResponse struct {
	Items []struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"Items"`
}

// ListLibraries fetches the user's top-level views.
func (c *JellyfinClient) ListLibraries(ctx context.Context) ([]Library, error) {
	endpoint := fmt.Sprintf("/Users/%s/Views", url.PathEscape(c.userID))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.New("catalog.ListLibraries", apperr.CatalogUnreachable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.New("catalog.ListLibraries", apperr.CatalogUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, c.classifyStatus(ctx, "catalog.ListLibraries", resp.StatusCode, resp.Header, body)
	}

	var parsed viewsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.New("catalog.ListLibraries", apperr.CatalogInvalidResponse, err)
	}
	out := make([]Library, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		out = append(out, Library{ID: it.ID, Name: it.Name})
	}
	return out, nil
}

type itemsResponse struct {
	Items            []json.RawMessage `json:"Items"`
	TotalRecordCount int                `json:"TotalRecordCount"`
}

type pagedItem struct {
	ID   string `json:"Id"`
	Type string `json:"Type"`
}

const itemPageSize = 100

type jellyfinItemIterator struct {
	client    *JellyfinClient
	libraryID string
	startIdx  int
	buffered  []ItemRef
	bufIdx    int
	exhausted bool
}

// ListItems returns a restartable, page-fetching iterator over a library.
// filters is not applied: every item under the library is returned,
// whatever its kind.
func (c *JellyfinClient) ListItems(ctx context.Context, libraryID string, filters ItemFilters) (ItemIterator, error) {
	return &jellyfinItemIterator{client: c, libraryID: libraryID}, nil
}

func (it *jellyfinItemIterator) Next(ctx context.Context) (ItemRef, bool, error) {
	if it.bufIdx < len(it.buffered) {
		ref := it.buffered[it.bufIdx]
		it.bufIdx++
		return ref, true, nil
	}
	if it.exhausted {
		return ItemRef{}, false, nil
	}

	endpoint := fmt.Sprintf("/Users/%s/Items?ParentId=%s&Recursive=true&StartIndex=%d&Limit=%d&Fields=ProviderIds",
		url.PathEscape(it.client.userID), url.QueryEscape(it.libraryID), it.startIdx, itemPageSize)
	req, err := it.client.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ItemRef{}, false, apperr.New("catalog.ListItems", apperr.CatalogUnreachable, err)
	}
	resp, err := it.client.httpClient.Do(req)
	if err != nil {
		return ItemRef{}, false, apperr.New("catalog.ListItems", apperr.CatalogUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ItemRef{}, false, it.client.classifyStatus(ctx, "catalog.ListItems", resp.StatusCode, resp.Header, body)
	}

	var parsed itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ItemRef{}, false, apperr.New("catalog.ListItems", apperr.CatalogInvalidResponse, err)
	}

	it.buffered = it.buffered[:0]
	for _, raw := range parsed.Items {
		var pi pagedItem
		if err := json.Unmarshal(raw, &pi); err != nil {
			continue
		}
		it.buffered = append(it.buffered, ItemRef{ItemID: pi.ID, Kind: jellyfinKind(pi.Type)})
	}
	it.startIdx += len(parsed.Items)
	it.bufIdx = 0
	if len(parsed.Items) < itemPageSize || it.startIdx >= parsed.TotalRecordCount {
		it.exhausted = true
	}

	if len(it.buffered) == 0 {
		return ItemRef{}, false, nil
	}
	ref := it.buffered[0]
	it.bufIdx = 1
	return ref, true, nil
}

func jellyfinKind(t string) ItemKind {
	switch t {
	case "Series":
		return KindSeries
	case "Episode":
		return KindEpisode
	default:
		return KindMovie
	}
}

type jellyfinMediaStream struct {
	Type           string `json:"Type"`
	Codec          string `json:"Codec"`
	Profile        string `json:"Profile"`
	Title          string `json:"Title"`
	IsDefault      bool   `json:"IsDefault"`
	Channels       int    `json:"Channels"`
	Width          int    `json:"Width"`
	Height         int    `json:"Height"`
	ColorTransfer  string `json:"ColorTransfer"`
	ColorSpace     string `json:"ColorSpace"`
	ColorRange     string `json:"ColorRange"`
	VideoRangeType string `json:"VideoRangeType"`
}

type jellyfinItem struct {
	ID              string                `json:"Id"`
	Type            string                `json:"Type"`
	Name            string                `json:"Name"`
	ProductionYear  int                   `json:"ProductionYear"`
	Genres          []string              `json:"Genres"`
	Tags            []string              `json:"Tags"`
	Path            string                `json:"Path"`
	ProviderIds     map[string]string     `json:"ProviderIds"`
	MediaStreams    []jellyfinMediaStream `json:"MediaStreams"`
	SeriesID        string                `json:"SeriesId"`
}

// GetItem fetches full item metadata including media streams.
func (c *JellyfinClient) GetItem(ctx context.Context, itemID string) (ItemMetadata, error) {
	endpoint := fmt.Sprintf("/Users/%s/Items/%s?Fields=PrimaryImageAspectRatio,ImageTags,Overview,ProductionYear,Genres,Tags,MediaStreams,ProviderIds",
		url.PathEscape(c.userID), url.PathEscape(itemID))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ItemMetadata{}, apperr.New("catalog.GetItem", apperr.CatalogUnreachable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ItemMetadata{}, apperr.New("catalog.GetItem", apperr.CatalogUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ItemMetadata{}, c.classifyStatus(ctx, "catalog.GetItem", resp.StatusCode, resp.Header, body)
	}

	var raw jellyfinItem
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return ItemMetadata{}, apperr.New("catalog.GetItem", apperr.CatalogInvalidResponse, err)
	}

	streams := make([]MediaStream, 0, len(raw.MediaStreams))
	for _, s := range raw.MediaStreams {
		streams = append(streams, MediaStream{
			Type: s.Type, Codec: s.Codec, Profile: s.Profile, Title: s.Title,
			IsDefault: s.IsDefault, Channels: s.Channels, Width: s.Width, Height: s.Height,
			ColorTransfer: s.ColorTransfer, ColorSpace: s.ColorSpace, ColorRange: s.ColorRange,
			VideoRangeType: s.VideoRangeType,
		})
	}

	return ItemMetadata{
		ItemRef:        ItemRef{ItemID: raw.ID, Kind: jellyfinKind(raw.Type)},
		Name:           raw.Name,
		ProductionYear: raw.ProductionYear,
		Genres:         raw.Genres,
		Tags:           raw.Tags,
		Path:           raw.Path,
		ProviderIDs:    raw.ProviderIds,
		MediaStreams:   streams,
		ParentSeriesID: raw.SeriesID,
	}, nil
}

// GetPrimaryImage downloads an item's primary image bytes.
func (c *JellyfinClient) GetPrimaryImage(ctx context.Context, itemID string) ([]byte, string, error) {
	endpoint := fmt.Sprintf("/Items/%s/Images/Primary", url.PathEscape(itemID))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", apperr.New("catalog.GetPrimaryImage", apperr.CatalogUnreachable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apperr.New("catalog.GetPrimaryImage", apperr.CatalogUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", c.classifyStatus(ctx, "catalog.GetPrimaryImage", resp.StatusCode, resp.Header, body)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperr.New("catalog.GetPrimaryImage", apperr.ImageFetchFailed, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// PutPrimaryImage uploads a new primary image, base64-encoded per the
// Jellyfin upload contract.
func (c *JellyfinClient) PutPrimaryImage(ctx context.Context, itemID string, data []byte, mime string) error {
	endpoint := fmt.Sprintf("/Items/%s/Images/Primary", url.PathEscape(itemID))
	encoded := base64.StdEncoding.EncodeToString(data)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(encoded)))
	if err != nil {
		return apperr.New("catalog.PutPrimaryImage", apperr.CatalogUnreachable, err)
	}
	req.Header.Set("Content-Type", mime)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.New("catalog.PutPrimaryImage", apperr.CatalogUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return c.classifyStatus(ctx, "catalog.PutPrimaryImage", resp.StatusCode, resp.Header, body)
	}
	return nil
}

type updateTagsPayload struct {
	Tags []string `json:"Tags"`
}

// AddTag fetches the item's current tags and POSTs the union back.
func (c *JellyfinClient) AddTag(ctx context.Context, itemID, tag string) error {
	meta, err := c.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	for _, t := range meta.Tags {
		if t == tag {
			return nil
		}
	}
	return c.setTags(ctx, itemID, append(meta.Tags, tag))
}

// RemoveTag fetches the item's current tags and POSTs the set minus tag.
func (c *JellyfinClient) RemoveTag(ctx context.Context, itemID, tag string) error {
	meta, err := c.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	out := make([]string, 0, len(meta.Tags))
	found := false
	for _, t := range meta.Tags {
		if t == tag {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		return nil
	}
	return c.setTags(ctx, itemID, out)
}

func (c *JellyfinClient) setTags(ctx context.Context, itemID string, tags []string) error {
	endpoint := fmt.Sprintf("/Items/%s", url.PathEscape(itemID))
	payload, err := json.Marshal(updateTagsPayload{Tags: tags})
	if err != nil {
		return apperr.New("catalog.setTags", apperr.CatalogInvalidResponse, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return apperr.New("catalog.setTags", apperr.CatalogUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.New("catalog.setTags", apperr.CatalogUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return c.classifyStatus(ctx, "catalog.setTags", resp.StatusCode, resp.Header, body)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}
