// Package keepa provides a client for the Keepa product/price-history API.
//
// Keepa meters requests with a token bucket and reports the bucket state
// (tokensLeft, refillIn) on every response. When the bucket is empty the
// API answers 429 with a refillIn duration; the client surfaces that as a
// resilience.RateLimitError so the retry layer can wait exactly as long
// as the provider asks, instead of guessing with backoff.
package keepa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scriptify-labs/worker-cli/internal/resilience"
)

// Client defines the Keepa operations used by the analysis pipeline.
type Client interface {
	// SearchASINs performs a product search and returns candidate ASINs.
	SearchASINs(ctx context.Context, term string) ([]string, error)
	// Product fetches one product's metadata and price history.
	Product(ctx context.Context, asin string) (*Product, error)
}

// Product is a single Keepa product record. CSV holds the price-history
// series as alternating (keepa-minute, price-cent) pairs per series.
type Product struct {
	ASIN  string    `json:"asin"`
	Title string    `json:"title"`
	CSV   [][]int64 `json:"csv"`
}

// TokenMeta is the bucket state Keepa attaches to every response.
type TokenMeta struct {
	RefillIn       int64   `json:"refillIn"` // milliseconds until next refill
	RefillRate     int     `json:"refillRate"`
	TokensLeft     int     `json:"tokensLeft"`
	TokensConsumed int     `json:"tokensConsumed"`
	FlowReduction  float64 `json:"tokenFlowReduction"`
}

// Option configures the Keepa client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithDomain sets the Amazon marketplace domain (1 = US, 3 = DE).
func WithDomain(domain int) Option {
	return func(c *httpClient) {
		c.domain = domain
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	domain  int
	http    *http.Client
}

// NewClient creates a new Keepa client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.keepa.com",
		domain:  3,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	TokenMeta
	ASINList []string `json:"asinList"`
}

type productResponse struct {
	TokenMeta
	Products []Product `json:"products"`
}

func (c *httpClient) SearchASINs(ctx context.Context, term string) ([]string, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("domain", fmt.Sprintf("%d", c.domain))
	q.Set("type", "product")
	q.Set("term", term)
	q.Set("asins-only", "1")
	q.Set("page", "0")
	q.Set("update", "0")

	body, err := c.get(ctx, "/search", q)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "keepa: decode search response")
	}
	return resp.ASINList, nil
}

func (c *httpClient) Product(ctx context.Context, asin string) (*Product, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("domain", fmt.Sprintf("%d", c.domain))
	q.Set("asin", asin)
	q.Set("update", "0")

	body, err := c.get(ctx, "/product", q)
	if err != nil {
		return nil, err
	}

	var resp productResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "keepa: decode product response")
	}
	if len(resp.Products) == 0 {
		return nil, nil
	}
	p := resp.Products[0]
	if p.ASIN == "" {
		p.ASIN = asin
	}
	return &p, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "keepa: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "keepa: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "keepa: read response body")
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	httpErr := eris.New(fmt.Sprintf("keepa: HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
	if resp.StatusCode == http.StatusTooManyRequests {
		// A malformed body must not break the retry loop: no parseable
		// refillIn just means no hint, and backoff takes over.
		return nil, resilience.NewRateLimitError(httpErr, parseRefillHint(body))
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(httpErr, resp.StatusCode)
	}
	return nil, httpErr
}

// parseRefillHint extracts the token-bucket refill duration from an error
// payload. Returns 0 when the payload does not carry a usable hint.
func parseRefillHint(body []byte) time.Duration {
	var meta TokenMeta
	if err := json.Unmarshal(body, &meta); err != nil {
		return 0
	}
	if meta.RefillIn <= 0 {
		return 0
	}
	return time.Duration(meta.RefillIn) * time.Millisecond
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
