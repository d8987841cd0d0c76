// Package artwork resolves cover images for a resolved identity via the
// iTunes Search API. It is a best-effort collaborator: callers substitute a
// placeholder on any failure and never block pipeline progress on it.
package artwork

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://itunes.apple.com"

// Client looks up album cover art.
type Client interface {
	CoverURL(ctx context.Context, artist, album string) (string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an artwork client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		CollectionName string `json:"collectionName"`
		ArtworkURL100  string `json:"artworkUrl100"`
	} `json:"results"`
}

func (c *httpClient) CoverURL(ctx context.Context, artist, album string) (string, error) {
	term := strings.TrimSpace(artist + " " + album)
	if term == "" {
		return "", eris.New("artwork: empty search term")
	}

	params := url.Values{}
	params.Set("term", term)
	params.Set("entity", "album")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return "", eris.Wrap(err, "artwork: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "artwork: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "artwork: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("artwork: unexpected status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", eris.Wrap(err, "artwork: unmarshal response")
	}
	if parsed.ResultCount == 0 || len(parsed.Results) == 0 {
		return "", eris.Errorf("artwork: no results for %q", term)
	}

	u := parsed.Results[0].ArtworkURL100
	if u == "" {
		return "", eris.Errorf("artwork: result without image for %q", term)
	}
	// The 100px thumbnail URL upscales by path substitution.
	return strings.Replace(u, "100x100", "600x600", 1), nil
}
