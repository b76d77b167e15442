// Command aphrodite runs the poster badging pipeline: it watches a media
// catalog, enriches items from external rating and awards sources, renders
// badge overlays onto posters, and exposes the whole thing over HTTP.
//
// Wiring follows the teacher's cmd/server/main.go: load config, build
// every component, hang them off a suture supervisor tree, then block on
// an interrupt signal before tearing the tree down gracefully.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/badges"
	"github.com/aphrodite-badges/aphrodite/internal/cache"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
	"github.com/aphrodite-badges/aphrodite/internal/config"
	"github.com/aphrodite-badges/aphrodite/internal/configstore"
	"github.com/aphrodite-badges/aphrodite/internal/control"
	"github.com/aphrodite-badges/aphrodite/internal/enrichment"
	"github.com/aphrodite-badges/aphrodite/internal/jobengine"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/posterstore"
	"github.com/aphrodite-badges/aphrodite/internal/render"
	"github.com/aphrodite-badges/aphrodite/internal/revert"
	"github.com/aphrodite-badges/aphrodite/internal/scheduler"
	"github.com/aphrodite-badges/aphrodite/internal/store"
	"github.com/aphrodite-badges/aphrodite/internal/supervisor"
)

const enrichmentCacheTTL = 7 * 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "path to aphrodite.yaml (default: search standard locations)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "aphrodite: loading config:", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: os.Stderr,
	})
	log := logging.WithComponent("main")

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("creating data directory")
	}

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer db.Close()

	cs := configstore.New(db)

	catalogClient := catalog.NewResilientClient(
		catalog.NewJellyfinClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.Catalog.UserID),
		cfg.Catalog.RPS, cfg.Catalog.Burst,
	)

	registry := buildEnrichmentRegistry(context.Background(), cs, db, cfg)

	badgeCatalog := badges.New(cs)

	fonts := render.NewFontManager([]string{cfg.FontsRoot()}, "DejaVuSans")
	assetLoader := render.AssetLoader(func(name string) ([]byte, error) {
		return os.ReadFile(cfg.AssetsRoot() + "/" + name)
	})
	renderer := render.NewRenderer(fonts, assetLoader)

	posters, err := posterstore.New(cfg.PosterRoot())
	if err != nil {
		log.Fatal().Err(err).Msg("opening poster store")
	}

	reverter := revert.New(catalogClient, posters, db, cfg.Catalog.Tag)

	engine := jobengine.New(jobengine.Config{
		Workers:     cfg.JobEngine.Workers,
		QueueSize:   cfg.JobEngine.QueueSize,
		MaxAttempts: cfg.JobEngine.MaxAttempts,
		ItemTimeout: time.Duration(cfg.JobEngine.ItemTimeoutS) * time.Second,
		Tag:         cfg.Catalog.Tag,
	}, jobengine.Deps{
		CatalogClient: catalogClient,
		Registry:      registry,
		BadgeCatalog:  badgeCatalog,
		Renderer:      renderer,
		Posters:       posters,
		DB:            db,
		Reverter:      reverter,
	})
	pool := jobengine.NewPool(engine)

	sched := scheduler.New(db, engine, &allItemsLister{client: catalogClient}, scheduler.Config{
		CheckInterval: time.Duration(cfg.Scheduler.CheckIntervalS) * time.Second,
	})

	router := control.New(engine, reverter, cs, catalogClient, registry, cfg.Control.CORSOrigins)
	controlSvc := control.NewService(cfg.Control.ListenAddr, router)

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.DefaultConfig())
	tree.AddCoreService(pool)
	tree.AddCoreService(sched)
	tree.AddHTTPService(controlSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("listen_addr", cfg.Control.ListenAddr).Msg("aphrodite starting")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("supervisor tree exited")
		}
	}

	<-ctx.Done()
	log.Info().Msg("aphrodite stopped")
}

// buildEnrichmentRegistry registers every enrichment source with a
// configured API key, each backed by its own durable cache bucket.
func buildEnrichmentRegistry(ctx context.Context, cs *configstore.Store, db *store.Store, cfg config.Config) *enrichment.Registry {
	log := logging.WithComponent("enrichment")
	registry := enrichment.NewRegistry()

	type sourceSpec struct {
		keyName string
		build   func(apiKey string) enrichment.Fetcher
	}

	specs := []sourceSpec{
		{"omdb_api_key", func(key string) enrichment.Fetcher {
			return enrichment.NewOMDbSource(key, cfg.Catalog.RPS, cfg.Catalog.Burst, cache.New(db, "omdb", enrichmentCacheTTL))
		}},
		{"tmdb_api_key", func(key string) enrichment.Fetcher {
			return enrichment.NewTMDbSource(key, "en", cfg.Catalog.RPS, cfg.Catalog.Burst, cache.New(db, "tmdb", enrichmentCacheTTL))
		}},
		{"mdblist_api_key", func(key string) enrichment.Fetcher {
			return enrichment.NewMDBListSource(key, cfg.Catalog.RPS, cfg.Catalog.Burst, cache.New(db, "mdblist", enrichmentCacheTTL))
		}},
		{"mal_client_id", func(key string) enrichment.Fetcher {
			return enrichment.NewMALSource(key, nil, cfg.Catalog.RPS, cfg.Catalog.Burst, cache.New(db, "mal", enrichmentCacheTTL))
		}},
	}

	for _, spec := range specs {
		key, err := cs.GetString(ctx, spec.keyName)
		if err != nil {
			if k, _ := apperr.KindOf(err); k != apperr.ConfigMissing {
				log.Warn().Err(err).Str("key", spec.keyName).Msg("reading enrichment api key")
			}
			continue
		}
		if key == "" {
			continue
		}
		registry.RegisterFetcher(spec.build(key))
	}

	registry.RegisterFetcher(enrichment.NewAniDBSource("aphrodite", 1, cfg.Catalog.RPS, cfg.Catalog.Burst, cache.New(db, "anidb", enrichmentCacheTTL)))

	return registry
}
