package scan

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/crateside/sleeve/internal/model"
	"github.com/crateside/sleeve/pkg/anthropic"
	"github.com/crateside/sleeve/pkg/musicbrainz"
)

// --- Anthropic mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse builds a minimal single-text-block response.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

// --- MusicBrainz mock ---

type mockMusicBrainzClient struct {
	mock.Mock
}

func (m *mockMusicBrainzClient) SearchReleaseGroups(ctx context.Context, query string, limit int) ([]musicbrainz.ReleaseGroup, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]musicbrainz.ReleaseGroup), args.Error(1)
}

// --- Artwork mock ---

type mockArtworkClient struct {
	mock.Mock
}

func (m *mockArtworkClient) CoverURL(ctx context.Context, artist, album string) (string, error) {
	args := m.Called(ctx, artist, album)
	return args.String(0), args.Error(1)
}

// --- Event sink mock ---

// recordingSink collects lifecycle events; err, when set, is returned from
// every Record call.
type recordingSink struct {
	mu     sync.Mutex
	events []model.SessionEvent
	err    error
}

func (r *recordingSink) Record(_ context.Context, ev model.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) ListEvents(_ context.Context, sessionID string, _ int) ([]model.SessionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SessionEvent
	for _, ev := range r.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// --- Stage stubs for orchestrator tests ---

// stubTier1 returns a fixed result and counts invocations.
type stubTier1 struct {
	mu     sync.Mutex
	result *Tier1Result
	err    error
	calls  int
}

func (s *stubTier1) Identify(_ context.Context, _ model.Capture) (*Tier1Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.result, s.err
}

type stubTier2 struct {
	mu       sync.Mutex
	identity *model.Identity
	err      error
	calls    int
}

func (s *stubTier2) Identify(_ context.Context, _ model.EscalationCandidate) (*model.Identity, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.identity, s.err
}

func (s *stubTier2) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubEnricher struct {
	mu      sync.Mutex
	payload *model.Enrichment
	err     error
	calls   int
}

func (s *stubEnricher) Generate(_ context.Context, _ model.Identity, _ bool) (*model.Enrichment, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.payload, s.err
}

func (s *stubEnricher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
