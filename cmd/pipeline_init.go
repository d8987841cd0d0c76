package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crateside/sleeve/internal/cache"
	"github.com/crateside/sleeve/internal/cost"
	"github.com/crateside/sleeve/internal/scan"
	"github.com/crateside/sleeve/internal/store"
	"github.com/crateside/sleeve/pkg/anthropic"
	"github.com/crateside/sleeve/pkg/artwork"
	"github.com/crateside/sleeve/pkg/musicbrainz"
)

// pipelineEnv bundles everything a command needs to run scans.
type pipelineEnv struct {
	Orchestrator *scan.Orchestrator
	Cache        cache.Store
	Events       store.Store
	Tracker      *cost.Tracker
}

// Close releases the env's resources.
func (e *pipelineEnv) Close() {
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
	if e.Events != nil {
		if err := e.Events.Close(); err != nil {
			zap.L().Warn("close event store", zap.Error(err))
		}
	}
}

// initPipeline sets up the cache, event store, API clients, and the
// orchestrator from the loaded config.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("SLEEVE_ANTHROPIC_KEY is required")
	}

	cacheStore, err := initCache()
	if err != nil {
		return nil, err
	}

	eventStore, err := initEventStore(ctx)
	if err != nil {
		_ = cacheStore.Close()
		return nil, err
	}

	aiClient := anthropic.NewClient(cfg.Anthropic.Key)
	mbClient := musicbrainz.NewClient(
		musicbrainz.WithBaseURL(cfg.MusicBrainz.BaseURL),
		musicbrainz.WithUserAgent(cfg.MusicBrainz.UserAgent),
		musicbrainz.WithRateLimit(cfg.MusicBrainz.RateLimit),
	)
	artClient := artwork.NewClient(artwork.WithBaseURL(cfg.Artwork.BaseURL))

	tracker := cost.NewTracker(cost.DefaultRates())

	tier1 := scan.NewTier1(aiClient, cfg.Anthropic.HaikuModel, cfg.Anthropic.MaxTokens, tracker)
	tier2 := scan.NewTier2(aiClient, mbClient, cfg.Anthropic.SonnetModel, cfg.Anthropic.MaxTokens, tracker)
	enricher := scan.NewEnricher(aiClient, cacheStore, scan.EnricherConfig{
		StandardModel: cfg.Anthropic.HaikuModel,
		PremiumModel:  cfg.Anthropic.SonnetModel,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		Cooldown:      time.Duration(cfg.Scan.CooldownHours) * time.Hour,
	}, tracker)

	// Entitlement is config-driven here; a deployment with per-caller
	// entitlements substitutes its own func.
	premium := cfg.Scan.Premium
	entitlement := func(context.Context) bool { return premium }

	orch := scan.NewOrchestrator(tier1, tier2, enricher, artClient, eventStore, entitlement, tracker, scan.Config{
		Tier1Timeout:          time.Duration(cfg.Scan.Tier1TimeoutSecs) * time.Second,
		Tier2Timeout:          time.Duration(cfg.Scan.Tier2TimeoutSecs) * time.Second,
		EnrichTimeout:         time.Duration(cfg.Scan.EnrichTimeoutSecs) * time.Second,
		ConfirmationHold:      time.Duration(cfg.Scan.ConfirmationHoldMS) * time.Millisecond,
		PlaceholderArtworkURL: cfg.Artwork.PlaceholderURL,
	})

	return &pipelineEnv{
		Orchestrator: orch,
		Cache:        cacheStore,
		Events:       eventStore,
		Tracker:      tracker,
	}, nil
}

// initCache opens the enrichment cache per config.
func initCache() (cache.Store, error) {
	switch cfg.Cache.Driver {
	case "memory":
		return cache.NewMemory(), nil
	case "sqlite":
		return cache.NewSQLite(cfg.Cache.SQLitePath)
	default:
		return nil, eris.Errorf("unsupported cache driver %q", cfg.Cache.Driver)
	}
}

// initEventStore opens the session event log per config.
func initEventStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
