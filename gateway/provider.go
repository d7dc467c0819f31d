package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Provider executes one search against a single SERP API.
type Provider interface {
	Name() string
	Config() ProviderConfig
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResults, error)
}

const defaultProviderTimeout = 20 * time.Second

// HTTPProvider calls a JSON SERP API over HTTP, authenticated by API
// key, and normalizes the response into SearchResults.
type HTTPProvider struct {
	cfg    ProviderConfig
	client *http.Client
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient overrides the HTTP client, e.g. for custom transports
// or in tests.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// NewHTTPProvider creates a provider from its configuration.
func NewHTTPProvider(cfg ProviderConfig, opts ...HTTPOption) (*HTTPProvider, error) {
	if err := cfg.ValidateAndPrepare(); err != nil {
		return nil, err
	}
	p := &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultProviderTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return p.cfg.Name }

// Config implements Provider.
func (p *HTTPProvider) Config() ProviderConfig { return p.cfg }

// wireResponse is the provider's raw JSON envelope. Organic entries are
// a ranked list; feature blocks are present only when the SERP showed
// them.
type wireResponse struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		URL      string `json:"url"`
		Title    string `json:"title"`
		Snippet  string `json:"snippet"`
		IsAd     bool   `json:"is_ad"`
	} `json:"organic_results"`
	FeaturedSnippet *struct {
		URL string `json:"url"`
	} `json:"featured_snippet"`
	KnowledgePanel *struct {
		Website string `json:"website"`
	} `json:"knowledge_panel"`
	RelatedQuestions []json.RawMessage `json:"related_questions"`
	LocalResults     []json.RawMessage `json:"local_results"`
	ShoppingResults  []json.RawMessage `json:"shopping_results"`
	VideoResults     []json.RawMessage `json:"video_results"`
	NewsResults      []json.RawMessage `json:"news_results"`
	ImageResults     []json.RawMessage `json:"image_results"`
	TotalResults     int64             `json:"total_results"`
}

// Search implements Provider. Failures are returned as *ProviderError so
// the rate limiter can classify them for retry.
func (p *HTTPProvider) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResults, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	endpoint, err := p.buildURL(query, opts)
	if err != nil {
		return nil, &ProviderError{Provider: p.cfg.Name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.cfg.Name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.cfg.Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider:   p.cfg.Name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		// Malformed body on a 200 is non-retryable.
		return nil, &ProviderError{
			Provider:   p.cfg.Name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("malformed response: %w", err),
		}
	}

	results := p.normalize(query, &wire)
	results.SearchTime = time.Since(started)
	log.Debug().
		Str("provider", p.cfg.Name).
		Str("query", query).
		Int("results", len(results.Results)).
		Dur("search_time", results.SearchTime).
		Msg("provider search completed")
	return results, nil
}

// buildURL assembles the provider request from base URL, API key, and
// query parameters.
func (p *HTTPProvider) buildURL(query string, opts SearchOptions) (string, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.BaseURL, "/") + "/search")
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	q := u.Query()
	q.Set("api_key", p.cfg.APIKey)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(opts.ResultsPerPage))
	q.Set("hl", opts.Language)
	q.Set("device", opts.Device)
	if opts.Location != "" {
		q.Set("location", opts.Location)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// normalize converts the wire envelope into SearchResults.
func (p *HTTPProvider) normalize(query string, wire *wireResponse) *SearchResults {
	results := make([]SerpResult, 0, len(wire.OrganicResults))
	for i, r := range wire.OrganicResults {
		position := r.Position
		if position == 0 {
			position = i + 1 // some providers omit explicit positions
		}
		results = append(results, SerpResult{
			Position: position,
			URL:      r.URL,
			Domain:   DomainOf(r.URL),
			Title:    r.Title,
			Snippet:  r.Snippet,
			IsAd:     r.IsAd,
		})
	}

	features := SerpFeatures{
		PeopleAlsoAsk: len(wire.RelatedQuestions) > 0,
		LocalPack:     len(wire.LocalResults) > 0,
		Shopping:      len(wire.ShoppingResults) > 0,
		Video:         len(wire.VideoResults) > 0,
		News:          len(wire.NewsResults) > 0,
		Images:        len(wire.ImageResults) > 0,
	}
	if wire.FeaturedSnippet != nil {
		features.FeaturedSnippet = true
		features.FeaturedSnippetURL = wire.FeaturedSnippet.URL
	}
	if wire.KnowledgePanel != nil {
		features.KnowledgePanel = true
		features.KnowledgePanelDomain = DomainOf(wire.KnowledgePanel.Website)
	}

	total := wire.TotalResults
	if total == 0 {
		total = int64(len(results))
	}
	return &SearchResults{
		Query:        query,
		Results:      results,
		Features:     features,
		TotalResults: total,
		Provider:     p.cfg.Name,
	}
}

// DomainOf extracts the registrable host from a URL, lowercased with any
// "www." prefix stripped. Bare domains without a scheme are accepted.
func DomainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	host := rawURL
	if strings.Contains(rawURL, "//") {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			host = u.Host
		}
	} else if i := strings.IndexByte(rawURL, '/'); i >= 0 {
		host = rawURL[:i]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
