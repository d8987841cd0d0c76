// Package musicbrainz is a minimal client for the MusicBrainz release-group
// search API. Results are advisory evidence for the expensive identification
// tier; no schema beyond the fields below is relied on.
package musicbrainz

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://musicbrainz.org/ws/2"
	defaultUserAgent = "sleeve/1.0 (https://github.com/crateside/sleeve)"
)

// Client searches MusicBrainz for release groups.
type Client interface {
	SearchReleaseGroups(ctx context.Context, query string, limit int) ([]ReleaseGroup, error)
}

// ReleaseGroup is one search hit.
type ReleaseGroup struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Artist           string   `json:"artist"`
	FirstReleaseDate string   `json:"first_release_date"`
	PrimaryType      string   `json:"primary_type"`
	Score            int      `json:"score"`
	Tags             []string `json:"tags,omitempty"`
}

// Year parses the release year out of FirstReleaseDate, or 0.
func (rg ReleaseGroup) Year() int {
	if len(rg.FirstReleaseDate) < 4 {
		return 0
	}
	y, err := strconv.Atoi(rg.FirstReleaseDate[:4])
	if err != nil {
		return 0
	}
	return y
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent overrides the User-Agent header. MusicBrainz requires a
// meaningful one.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the request rate. MusicBrainz etiquette is one request
// per second for anonymous clients, which is the default.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a MusicBrainz client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// searchResponse mirrors just the fields we read from the API.
type searchResponse struct {
	ReleaseGroups []struct {
		ID               string `json:"id"`
		Title            string `json:"title"`
		Score            int    `json:"score"`
		FirstReleaseDate string `json:"first-release-date"`
		PrimaryType      string `json:"primary-type"`
		ArtistCredit     []struct {
			Name string `json:"name"`
		} `json:"artist-credit"`
		Tags []struct {
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"release-groups"`
}

func (c *httpClient) SearchReleaseGroups(ctx context.Context, query string, limit int) ([]ReleaseGroup, error) {
	if strings.TrimSpace(query) == "" {
		return nil, eris.New("musicbrainz: empty query")
	}
	if limit <= 0 {
		limit = 5
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "musicbrainz: rate limit wait")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/release-group/?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "musicbrainz: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "musicbrainz: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "musicbrainz: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("musicbrainz: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "musicbrainz: unmarshal response")
	}

	out := make([]ReleaseGroup, 0, len(parsed.ReleaseGroups))
	for _, rg := range parsed.ReleaseGroups {
		item := ReleaseGroup{
			ID:               rg.ID,
			Title:            rg.Title,
			Score:            rg.Score,
			FirstReleaseDate: rg.FirstReleaseDate,
			PrimaryType:      rg.PrimaryType,
		}
		if len(rg.ArtistCredit) > 0 {
			item.Artist = rg.ArtistCredit[0].Name
		}
		for _, tag := range rg.Tags {
			item.Tags = append(item.Tags, tag.Name)
		}
		out = append(out, item)
	}
	return out, nil
}
