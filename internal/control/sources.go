package control

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
	"github.com/aphrodite-badges/aphrodite/internal/enrichment"
)

// SourceRef names one candidate replacement image for posters.fetch_sources.
// "catalog" resolves to the item's current primary image; anything else
// naming a registered enrichment source is advertised so an operator can
// pair it with a URL they already have from that provider.
type SourceRef struct {
	Source string `json:"source"`
	Ref    string `json:"ref"`
}

// sourceFetcher resolves a source_ref to image bytes for posters.replace
// and lists the candidates posters.fetch_sources advertises.
type sourceFetcher struct {
	catalog  catalog.Client
	registry *enrichment.Registry
	http     *http.Client
}

func newSourceFetcher(catalogClient catalog.Client, registry *enrichment.Registry) *sourceFetcher {
	return &sourceFetcher{catalog: catalogClient, registry: registry, http: &http.Client{Timeout: 15 * time.Second}}
}

func (f *sourceFetcher) list(itemID string) []SourceRef {
	refs := []SourceRef{{Source: "catalog", Ref: "catalog"}}
	if f.registry == nil {
		return refs
	}
	for _, fetcher := range f.registry.Fetchers() {
		refs = append(refs, SourceRef{Source: fetcher.Name(), Ref: fmt.Sprintf("%s:<url>", fetcher.Name())})
	}
	return refs
}

// resolve fetches image bytes for sourceRef: "catalog" re-reads the item's
// current primary image; an http(s) URL, optionally prefixed with a
// registered source name and ':' as advertised by list, is fetched
// directly; anything else is source_not_found.
func (f *sourceFetcher) resolve(ctx context.Context, itemID, sourceRef string) (data []byte, mime string, err error) {
	if name, rest, ok := strings.Cut(sourceRef, ":"); ok && f.registry != nil {
		if _, registered := f.registry.Get(name); registered {
			sourceRef = rest
		}
	}
	switch {
	case sourceRef == "" || sourceRef == "catalog":
		return f.catalog.GetPrimaryImage(ctx, itemID)
	case strings.HasPrefix(sourceRef, "http://"), strings.HasPrefix(sourceRef, "https://"):
		return f.fetchURL(ctx, sourceRef)
	default:
		return nil, "", apperr.New("control.resolveSource", apperr.SourceNotFound, fmt.Errorf("unknown source_ref %q", sourceRef))
	}
}

func (f *sourceFetcher) fetchURL(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", apperr.New("control.fetchURL", apperr.SourceInvalidResponse, err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, "", apperr.New("control.fetchURL", apperr.SourceUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", apperr.New("control.fetchURL", apperr.SourceInvalidResponse, fmt.Errorf("status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, "", apperr.New("control.fetchURL", apperr.SourceInvalidResponse, err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return data, mime, nil
}
