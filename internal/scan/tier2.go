package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crateside/sleeve/internal/cost"
	"github.com/crateside/sleeve/internal/model"
	"github.com/crateside/sleeve/pkg/anthropic"
	"github.com/crateside/sleeve/pkg/musicbrainz"
)

const tier2SystemPrompt = `You identify vinyl record and CD releases from partial evidence: text extracted from a cover photo, a visual description, and candidate matches from the MusicBrainz catalog. The candidates are advisory; they may all be wrong.

Respond with a single valid JSON object in exactly one of these shapes:

If the evidence identifies one record:
{"found": true, "artist": "<artist>", "album": "<album title>", "year": <release year or null>, "genres": ["<genre>", ...], "label": "<record label or empty string>"}

If the evidence is insufficient or contradictory:
{"found": false, "reason": "<why>"}

Only claim a match you would defend; a wrong identification is worse than none.`

const tier2CandidateLimit = 5

// Tier2 is the expensive identifier. It makes exactly one knowledge lookup
// round-trip (MusicBrainz) and one reasoning call per invocation, with no
// retries: the Orchestrator treats any failure here as terminal.
type Tier2 struct {
	client      anthropic.Client
	musicbrainz musicbrainz.Client
	model       string
	maxTokens   int64
	tracker     *cost.Tracker
}

// NewTier2 creates a Tier-2 identifier using the given (expensive) model.
func NewTier2(client anthropic.Client, mb musicbrainz.Client, modelID string, maxTokens int64, tracker *cost.Tracker) *Tier2 {
	return &Tier2{client: client, musicbrainz: mb, model: modelID, maxTokens: maxTokens, tracker: tracker}
}

// Identify resolves an escalation candidate to an identity. It consumes the
// candidate, never the raw capture.
func (t *Tier2) Identify(ctx context.Context, c model.EscalationCandidate) (*model.Identity, error) {
	query := strings.TrimSpace(c.SuggestedQuery)
	if query == "" {
		query = strings.TrimSpace(c.ExtractedText)
	}
	if query == "" {
		return nil, eris.New("tier2: candidate has no query")
	}

	// One round-trip only. An empty result set is still evidence: the
	// model answers from the candidate text alone.
	groups, err := t.musicbrainz.SearchReleaseGroups(ctx, query, tier2CandidateLimit)
	if err != nil {
		zap.L().Warn("tier2: musicbrainz lookup failed, proceeding without candidates",
			zap.String("query", query),
			zap.Error(err),
		)
		groups = nil
	}

	resp, err := t.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     t.model,
		MaxTokens: t.maxTokens,
		System:    []anthropic.SystemBlock{{Text: tier2SystemPrompt}},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: buildTier2Prompt(c, groups),
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "tier2: reasoning call")
	}

	resp.Usage.LogUsage(t.model, "tier2")
	if t.tracker != nil {
		t.tracker.Record("tier2", t.model, cost.Usage{
			InputTokens:         resp.Usage.InputTokens,
			OutputTokens:        resp.Usage.OutputTokens,
			CacheCreationTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:     resp.Usage.CacheReadInputTokens,
		})
	}

	return parseTier2(resp.Text())
}

func buildTier2Prompt(c model.EscalationCandidate, groups []musicbrainz.ReleaseGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Text extracted from the cover:\n%s\n\n", c.ExtractedText)
	if c.Summary != "" {
		fmt.Fprintf(&b, "Visual description:\n%s\n\n", c.Summary)
	}

	if len(groups) == 0 {
		b.WriteString("Catalog candidates: none found.\n")
		return b.String()
	}

	b.WriteString("Catalog candidates (MusicBrainz release groups):\n")
	for i, rg := range groups {
		fmt.Fprintf(&b, "%d. %q by %s", i+1, rg.Title, rg.Artist)
		if y := rg.Year(); y > 0 {
			fmt.Fprintf(&b, " (%d)", y)
		}
		if rg.PrimaryType != "" {
			fmt.Fprintf(&b, " [%s]", rg.PrimaryType)
		}
		fmt.Fprintf(&b, " score=%d", rg.Score)
		if len(rg.Tags) > 0 {
			fmt.Fprintf(&b, " tags=%s", strings.Join(rg.Tags, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func parseTier2(text string) (*model.Identity, error) {
	var raw struct {
		Found  bool     `json:"found"`
		Artist string   `json:"artist"`
		Album  string   `json:"album"`
		Year   *int     `json:"year"`
		Genres []string `json:"genres"`
		Label  string   `json:"label"`
		Reason string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "tier2: parse response")
	}

	if !raw.Found {
		if raw.Reason == "" {
			raw.Reason = "no confident match"
		}
		return nil, eris.Errorf("tier2: %s", raw.Reason)
	}
	if raw.Artist == "" || raw.Album == "" {
		return nil, eris.New("tier2: match without artist/album")
	}

	return &model.Identity{
		Artist: raw.Artist,
		Album:  raw.Album,
		Year:   raw.Year,
		Genres: raw.Genres,
		Label:  raw.Label,
	}, nil
}
