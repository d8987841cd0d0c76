package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crateside/sleeve/internal/cost"
	"github.com/crateside/sleeve/internal/model"
	"github.com/crateside/sleeve/internal/store"
	"github.com/crateside/sleeve/pkg/artwork"
)

// Tier1Identifier is the cheap identification attempt.
type Tier1Identifier interface {
	Identify(ctx context.Context, capture model.Capture) (*Tier1Result, error)
}

// Tier2Identifier is the expensive, gate-protected attempt.
type Tier2Identifier interface {
	Identify(ctx context.Context, candidate model.EscalationCandidate) (*model.Identity, error)
}

// EnrichmentGenerator produces the review for a resolved identity.
type EnrichmentGenerator interface {
	Generate(ctx context.Context, identity model.Identity, premium bool) (*model.Enrichment, error)
}

// EntitlementFunc reports whether the caller is entitled to the premium
// generation tier. It is consulted exactly once per session, at enrichment
// time. A nil func means standard tier.
type EntitlementFunc func(ctx context.Context) bool

// Config holds per-stage timeouts and the presentation hold. Timeouts are
// per stage, never per session; exceeding one is identical to that stage
// failing.
type Config struct {
	Tier1Timeout  time.Duration
	Tier2Timeout  time.Duration
	EnrichTimeout time.Duration

	// ConfirmationHold is the pause between identified and
	// loadingEnrichment. It exists for downstream presentation only; tests
	// set it to zero.
	ConfirmationHold time.Duration

	// PlaceholderArtworkURL is used whenever cover art lookup fails.
	PlaceholderArtworkURL string
}

func (c Config) withDefaults() Config {
	if c.Tier1Timeout <= 0 {
		c.Tier1Timeout = 20 * time.Second
	}
	if c.Tier2Timeout <= 0 {
		c.Tier2Timeout = 45 * time.Second
	}
	if c.EnrichTimeout <= 0 {
		c.EnrichTimeout = 60 * time.Second
	}
	return c
}

// Orchestrator drives the scan state machine. All collaborators are
// injected; the zero-cost pure steps (gate, key derivation) are called
// directly.
type Orchestrator struct {
	tier1       Tier1Identifier
	tier2       Tier2Identifier
	enricher    EnrichmentGenerator
	artwork     artwork.Client
	events      store.Store
	entitlement EntitlementFunc
	tracker     *cost.Tracker
	cfg         Config
}

// NewOrchestrator wires the pipeline. artwork, events, entitlement and
// tracker may be nil; each degrades to a neutral default.
func NewOrchestrator(
	tier1 Tier1Identifier,
	tier2 Tier2Identifier,
	enricher EnrichmentGenerator,
	artworkClient artwork.Client,
	events store.Store,
	entitlement EntitlementFunc,
	tracker *cost.Tracker,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		tier1:       tier1,
		tier2:       tier2,
		enricher:    enricher,
		artwork:     artworkClient,
		events:      events,
		entitlement: entitlement,
		tracker:     tracker,
		cfg:         cfg.withDefaults(),
	}
}

// Session is the caller's handle on one scan. The orchestrator owns the
// mutable state; callers read snapshots or subscribe to transitions. A
// session is single-use: after a terminal state the only recovery is a new
// Submit.
type Session struct {
	id string

	mu       sync.RWMutex
	snap     model.Session
	watchers []chan model.Session

	done chan struct{}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns the current session state. The returned value is a copy;
// it never mutates after return.
func (s *Session) Snapshot() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Watch subscribes to state transitions. Each transition delivers a full
// snapshot; the channel closes after the terminal one. Slow consumers miss
// intermediate snapshots rather than stalling the pipeline.
func (s *Session) Watch() <-chan model.Session {
	ch := make(chan model.Session, 8)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.State.Terminal() {
		ch <- s.snap
		close(ch)
		return ch
	}
	s.watchers = append(s.watchers, ch)
	return ch
}

// transition applies mutate under the lock and moves the session to next,
// notifying watchers. Backward transitions are refused: the state order is
// an invariant, not a convention.
func (s *Session) transition(next model.ScanState, mutate func(*model.Session)) {
	s.mu.Lock()
	if next.Rank() < s.snap.State.Rank() {
		s.mu.Unlock()
		zap.L().Error("session: refusing backward transition",
			zap.String("session_id", s.id),
			zap.String("from", string(s.snap.State)),
			zap.String("to", string(next)),
		)
		return
	}
	if mutate != nil {
		mutate(&s.snap)
	}
	s.snap.State = next
	snap := s.snap
	watchers := s.watchers
	terminal := next.Terminal()
	if terminal {
		s.watchers = nil
	}
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- snap:
		default:
		}
		if terminal {
			close(ch)
		}
	}
	if terminal {
		close(s.done)
	}
}

// setArtwork records the cover URL without a state transition; artwork is
// never load-bearing.
func (s *Session) setArtwork(url string) {
	s.mu.Lock()
	s.snap.ArtworkURL = url
	s.mu.Unlock()
}

// Submit starts a new scan session for the capture and returns immediately.
// The pipeline runs on its own goroutine; ctx cancels it at the next
// suspension point. Re-submitting after a failure starts a brand-new
// session — there is no resume.
func (o *Orchestrator) Submit(ctx context.Context, capture model.Capture) *Session {
	s := &Session{
		id:   uuid.New().String(),
		done: make(chan struct{}),
		snap: model.Session{
			State:     model.StateIdle,
			CreatedAt: time.Now().UTC(),
		},
	}
	s.snap.ID = s.id

	go o.run(ctx, s, capture)
	return s
}

func (o *Orchestrator) run(ctx context.Context, s *Session, capture model.Capture) {
	log := zap.L().With(zap.String("session_id", s.id))

	s.transition(model.StateIdentifying, nil)

	identity, failure := o.identify(ctx, capture, log)
	if failure != nil {
		s.transition(model.StateIdentificationFailed, func(m *model.Session) {
			m.Failure = failure
		})
		o.emit(s, model.EventFailed, failure.Reason)
		return
	}

	resolvedAt := time.Now().UTC()
	s.transition(model.StateIdentified, func(m *model.Session) {
		m.Identity = identity
		m.IdentityResolvedAt = &resolvedAt
	})
	o.emit(s, model.EventIdentityResolved, identity.Artist+" — "+identity.Album)
	log.Info("session: identity resolved",
		zap.String("artist", identity.Artist),
		zap.String("album", identity.Album),
	)

	if o.cfg.ConfirmationHold > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(o.cfg.ConfirmationHold):
		}
	}

	s.transition(model.StateLoadingEnrichment, nil)

	premium := false
	if o.entitlement != nil {
		premium = o.entitlement(ctx)
	}

	var enrichment *model.Enrichment
	var enrichErr error

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ectx, cancel := context.WithTimeout(gCtx, o.cfg.EnrichTimeout)
		defer cancel()
		enrichment, enrichErr = o.enricher.Generate(ectx, *identity, premium)
		// Enrichment failure is scoped to enrichment; it must not cancel
		// the artwork branch, so the group never sees it.
		return nil
	})

	g.Go(func() error {
		if o.artwork == nil {
			return nil
		}
		actx, cancel := context.WithTimeout(gCtx, o.cfg.EnrichTimeout)
		defer cancel()
		url, err := o.artwork.CoverURL(actx, identity.Artist, identity.Album)
		if err != nil {
			log.Warn("session: artwork lookup failed, using placeholder", zap.Error(err))
			url = o.cfg.PlaceholderArtworkURL
		}
		s.setArtwork(url)
		return nil
	})

	_ = g.Wait()

	if enrichErr != nil {
		log.Warn("session: enrichment failed", zap.Error(enrichErr))
		failure := &model.Failure{Stage: model.StageEnrichment, Reason: enrichErr.Error()}
		s.transition(model.StateEnrichmentFailed, func(m *model.Session) {
			m.Failure = failure
		})
		o.emit(s, model.EventFailed, failure.Reason)
		return
	}

	enrichedAt := time.Now().UTC()
	s.transition(model.StateComplete, func(m *model.Session) {
		m.Enrichment = enrichment
		m.EnrichmentResolvedAt = &enrichedAt
	})
	o.emit(s, model.EventEnrichmentResolved, "")
	log.Info("session: complete", zap.Float64("score", enrichment.Score))
}

// identify runs Tier-1, the gate, and conditionally Tier-2. It returns
// either a resolved identity or the failure to surface; never both.
func (o *Orchestrator) identify(ctx context.Context, capture model.Capture, log *zap.Logger) (*model.Identity, *model.Failure) {
	t1ctx, cancel := context.WithTimeout(ctx, o.cfg.Tier1Timeout)
	res, err := o.tier1.Identify(t1ctx, capture)
	cancel()
	if err != nil {
		log.Info("session: tier1 failed", zap.Error(err))
		return nil, &model.Failure{Stage: model.StageTier1, Reason: err.Error()}
	}

	if res.Identity != nil {
		return res.Identity, nil
	}

	candidate := *res.Candidate
	if !ShouldEscalate(candidate) {
		// Cheaper to fail now than to spend Tier-2 on a signal this weak.
		if o.tracker != nil {
			o.tracker.RecordGateRejection()
		}
		log.Info("session: gate rejected escalation",
			zap.Int("meaningful_chars", MeaningfulChars(candidate.ExtractedText)),
			zap.String("confidence", string(candidate.Confidence)),
		)
		return nil, &model.Failure{Stage: model.StageGate, Reason: "signal too weak to escalate"}
	}

	t2ctx, cancel := context.WithTimeout(ctx, o.cfg.Tier2Timeout)
	identity, err := o.tier2.Identify(t2ctx, candidate)
	cancel()
	if err != nil {
		log.Info("session: tier2 failed", zap.Error(err))
		return nil, &model.Failure{Stage: model.StageTier2, Reason: err.Error()}
	}
	return identity, nil
}

// emit hands a lifecycle event to the persistence collaborator. The
// pipeline never depends on the write succeeding.
func (o *Orchestrator) emit(s *Session, kind model.EventKind, detail string) {
	if o.events == nil {
		return
	}
	snap := s.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.events.Record(ctx, model.SessionEvent{
		SessionID: s.id,
		Kind:      kind,
		State:     snap.State,
		Detail:    detail,
		At:        time.Now().UTC(),
	}); err != nil {
		zap.L().Warn("session: event write failed",
			zap.String("session_id", s.id),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}
