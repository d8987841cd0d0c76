package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/crateside/sleeve/internal/cache"
	"github.com/crateside/sleeve/internal/cost"
	"github.com/crateside/sleeve/internal/model"
	"github.com/crateside/sleeve/internal/normalize"
	"github.com/crateside/sleeve/pkg/anthropic"
)

const enrichSystemPrompt = `You are a music critic writing capsule reviews of records for collectors. Given a record's identity, write a review grounded in what is actually known about the record.

Respond with a single valid JSON object:
{"review": "<150-250 word review>", "score": <0.0-10.0>, "evidence": ["<fact the review relies on>", ...], "highlights": ["<standout track>", ...]}

If you know nothing about the record, say so in the review and score conservatively rather than inventing reception history.`

// EnricherConfig holds the knobs the Enricher reads once at construction.
type EnricherConfig struct {
	StandardModel string
	PremiumModel  string
	MaxTokens     int64
	Cooldown      time.Duration
}

// Enricher generates (or serves from cache) the review for a resolved
// identity. Concurrent requests for the same normalized key coalesce to a
// single in-flight generation.
type Enricher struct {
	client  anthropic.Client
	store   cache.Store
	cfg     EnricherConfig
	tracker *cost.Tracker
	group   singleflight.Group
	now     func() time.Time
}

// NewEnricher creates an Enricher on top of the given cache store.
func NewEnricher(client anthropic.Client, store cache.Store, cfg EnricherConfig, tracker *cost.Tracker) *Enricher {
	return &Enricher{
		client:  client,
		store:   store,
		cfg:     cfg,
		tracker: tracker,
		now:     time.Now,
	}
}

// Generate returns the enrichment for identity, consulting the cache first.
// premium selects the generation quality tier; it is an entitlement input,
// read exactly once per call and never stored.
//
// A cached success returns at zero generation cost. A cached failure inside
// the cooldown window fails immediately without generating. Otherwise one
// generation runs per key, its outcome is written back, and coalesced
// callers share the result.
func (e *Enricher) Generate(ctx context.Context, identity model.Identity, premium bool) (*model.Enrichment, error) {
	key := normalize.Key(identity.Album, identity.Artist)

	entry, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: cache read")
	}
	if entry = entry.Effective(e.now(), e.cfg.Cooldown); entry != nil {
		if entry.Status == cache.StatusSucceeded {
			zap.L().Info("enrich: cache hit", zap.String("key", key))
			if e.tracker != nil {
				e.tracker.RecordCacheHit()
			}
			return entry.Payload, nil
		}
		return nil, eris.Errorf("enrich: generation for %q failed recently, cooling down", key)
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.generate(ctx, key, identity, premium)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Enrichment), nil
}

func (e *Enricher) generate(ctx context.Context, key string, identity model.Identity, premium bool) (*model.Enrichment, error) {
	modelID := e.cfg.StandardModel
	tier := model.TierStandard
	if premium {
		modelID = e.cfg.PremiumModel
		tier = model.TierPremium
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: e.cfg.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: enrichSystemPrompt}},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: buildEnrichPrompt(identity),
		}},
	})
	if err != nil {
		// An abandoned generation writes nothing: the caller walked away,
		// the attempt says nothing about the key.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, eris.Wrap(err, "enrich: generation abandoned")
		}
		e.recordFailure(key)
		return nil, eris.Wrap(err, "enrich: generation call")
	}

	resp.Usage.LogUsage(modelID, "enrich")
	if e.tracker != nil {
		e.tracker.Record("enrich", modelID, cost.Usage{
			InputTokens:         resp.Usage.InputTokens,
			OutputTokens:        resp.Usage.OutputTokens,
			CacheCreationTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:     resp.Usage.CacheReadInputTokens,
		})
	}

	enrichment, err := parseEnrichment(resp.Text(), tier)
	if err != nil {
		e.recordFailure(key)
		return nil, err
	}

	if err := e.store.PutSuccess(ctx, key, enrichment); err != nil {
		// The enrichment itself is good; a cache write failure only costs
		// the next caller a regeneration.
		zap.L().Warn("enrich: cache write failed", zap.String("key", key), zap.Error(err))
	}
	return enrichment, nil
}

func (e *Enricher) recordFailure(key string) {
	// Detached context: the failure record must land even when the caller's
	// context is on its way out.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.PutFailure(ctx, key, e.now()); err != nil {
		zap.L().Warn("enrich: failure record write failed", zap.String("key", key), zap.Error(err))
	}
}

func buildEnrichPrompt(identity model.Identity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Record: %q by %s\n", identity.Album, identity.Artist)
	if identity.Year != nil {
		fmt.Fprintf(&b, "Released: %d\n", *identity.Year)
	}
	if len(identity.Genres) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", strings.Join(identity.Genres, ", "))
	}
	if identity.Label != "" {
		fmt.Fprintf(&b, "Label: %s\n", identity.Label)
	}
	return b.String()
}

func parseEnrichment(text string, tier model.EnrichmentTier) (*model.Enrichment, error) {
	var raw struct {
		Review     string   `json:"review"`
		Score      float64  `json:"score"`
		Evidence   []string `json:"evidence"`
		Highlights []string `json:"highlights"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "enrich: parse response")
	}
	if strings.TrimSpace(raw.Review) == "" {
		return nil, eris.New("enrich: empty review")
	}
	if raw.Score < 0 {
		raw.Score = 0
	}
	if raw.Score > 10 {
		raw.Score = 10
	}

	return &model.Enrichment{
		Review:     raw.Review,
		Evidence:   raw.Evidence,
		Score:      raw.Score,
		Tier:       tier,
		Highlights: raw.Highlights,
	}, nil
}
