// Package scan implements the identification and enrichment pipeline for a
// single sleeve capture: a cheap vision attempt, a cost gate, a
// search-augmented expensive attempt, and cache-first review generation,
// all sequenced by the Orchestrator.
package scan

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crateside/sleeve/internal/cost"
	"github.com/crateside/sleeve/internal/model"
	"github.com/crateside/sleeve/internal/resilience"
	"github.com/crateside/sleeve/pkg/anthropic"
)

const tier1SystemPrompt = `You identify vinyl record and CD covers from photographs. You answer from your own knowledge only; you have no search tools.

Respond with a single valid JSON object in exactly one of these shapes:

If you recognize the record with high confidence:
{"outcome": "identified", "artist": "<artist>", "album": "<album title>", "year": <release year or null>, "genres": ["<genre>", ...], "label": "<record label or empty string>"}

If you can read text or see identifying detail but are not certain of the record:
{"outcome": "escalate", "extracted_text": "<all legible text on the cover>", "summary": "<one-sentence visual description>", "confidence": "low|medium|high", "suggested_query": "<search query likely to find this record>"}

If the image is unusable (blurry, not a record cover, no signal):
{"outcome": "unreadable", "reason": "<why>"}

Never guess an identification. If unsure, escalate.`

// Tier1Result is the decoded outcome of a Tier-1 attempt. Exactly one field
// is set: Identity on a confident identification, Candidate on an
// escalation hand-off. Outright failure is returned as an error instead.
type Tier1Result struct {
	Identity  *model.Identity
	Candidate *model.EscalationCandidate
}

// Tier1 is the fast, low-cost identifier. It answers from model knowledge
// only, which bounds both latency and spend.
type Tier1 struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	tracker   *cost.Tracker
}

// NewTier1 creates a Tier-1 identifier using the given (cheap) model.
func NewTier1(client anthropic.Client, modelID string, maxTokens int64, tracker *cost.Tracker) *Tier1 {
	return &Tier1{client: client, model: modelID, maxTokens: maxTokens, tracker: tracker}
}

// Identify runs one vision call against the capture. A single retry is
// permitted for transient faults only; structural failures (unreadable
// input, malformed output) are returned immediately.
func (t *Tier1) Identify(ctx context.Context, capture model.Capture) (*Tier1Result, error) {
	if len(capture.Data) == 0 {
		return nil, eris.New("tier1: empty capture")
	}

	resp, err := resilience.DoVal(ctx, resilience.RetryConfig{MaxAttempts: 2}, "tier1 identify",
		func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return t.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     t.model,
				MaxTokens: t.maxTokens,
				System:    []anthropic.SystemBlock{{Text: tier1SystemPrompt}},
				Messages: []anthropic.Message{{
					Role:    "user",
					Content: "Identify this record cover.",
					Image: &anthropic.Image{
						MediaType: capture.MediaType,
						Data:      capture.Data,
					},
				}},
			})
		})
	if err != nil {
		return nil, eris.Wrap(err, "tier1: vision call")
	}

	resp.Usage.LogUsage(t.model, "tier1")
	if t.tracker != nil {
		t.tracker.Record("tier1", t.model, cost.Usage{
			InputTokens:         resp.Usage.InputTokens,
			OutputTokens:        resp.Usage.OutputTokens,
			CacheCreationTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:     resp.Usage.CacheReadInputTokens,
		})
	}

	return parseTier1(resp.Text())
}

func parseTier1(text string) (*Tier1Result, error) {
	var raw struct {
		Outcome       string   `json:"outcome"`
		Artist        string   `json:"artist"`
		Album         string   `json:"album"`
		Year          *int     `json:"year"`
		Genres        []string `json:"genres"`
		Label         string   `json:"label"`
		ExtractedText string   `json:"extracted_text"`
		Summary       string   `json:"summary"`
		Confidence    string   `json:"confidence"`
		Query         string   `json:"suggested_query"`
		Reason        string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "tier1: parse response")
	}

	switch strings.ToLower(raw.Outcome) {
	case "identified":
		if raw.Artist == "" || raw.Album == "" {
			return nil, eris.New("tier1: identified without artist/album")
		}
		return &Tier1Result{Identity: &model.Identity{
			Artist: raw.Artist,
			Album:  raw.Album,
			Year:   raw.Year,
			Genres: raw.Genres,
			Label:  raw.Label,
		}}, nil
	case "escalate":
		return &Tier1Result{Candidate: &model.EscalationCandidate{
			ExtractedText:  raw.ExtractedText,
			Summary:        raw.Summary,
			Confidence:     model.ParseConfidence(raw.Confidence),
			SuggestedQuery: raw.Query,
		}}, nil
	case "unreadable":
		zap.L().Debug("tier1: unreadable capture", zap.String("reason", raw.Reason))
		if raw.Reason == "" {
			raw.Reason = "no usable signal"
		}
		return nil, eris.Errorf("tier1: %s", raw.Reason)
	default:
		return nil, eris.Errorf("tier1: unknown outcome %q", raw.Outcome)
	}
}

// cleanJSON strips markdown fences and surrounding prose so the first JSON
// object in text can be unmarshaled.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
