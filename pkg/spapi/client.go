// Package spapi provides a client for the Amazon Selling Partner API,
// covering the catalog-items and product-pricing endpoints used by the
// analysis pipeline. The two endpoints are throttled independently by the
// provider, so the client carries one pacer per endpoint and spaces calls
// before sending rather than reacting to 429s alone.
package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scriptify-labs/worker-cli/internal/resilience"
)

// Client defines the Selling Partner API operations used by the analysis
// pipeline.
type Client interface {
	// GetCatalogItem fetches catalog summaries and images for one ASIN.
	GetCatalogItem(ctx context.Context, asin string) (*CatalogItem, error)
	// GetItemOffers fetches the offer listing for one ASIN in the
	// configured condition.
	GetItemOffers(ctx context.Context, asin string) (*OffersPayload, error)
}

// Option configures the SP-API client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithMarketplaceID sets the marketplace all requests are scoped to.
func WithMarketplaceID(id string) Option {
	return func(c *httpClient) {
		c.marketplaceID = id
	}
}

// WithCondition sets the item condition requested from the pricing
// endpoint.
func WithCondition(cond string) Option {
	return func(c *httpClient) {
		c.condition = cond
	}
}

// WithCatalogPace sets the interval between catalog-items calls.
func WithCatalogPace(interval time.Duration) Option {
	return func(c *httpClient) {
		c.catalogPace = resilience.NewPacer(interval)
	}
}

// WithOffersPace sets the interval between product-pricing calls.
func WithOffersPace(interval time.Duration) Option {
	return func(c *httpClient) {
		c.offersPace = resilience.NewPacer(interval)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	accessToken   string
	baseURL       string
	marketplaceID string
	condition     string
	catalogPace   *resilience.Pacer
	offersPace    *resilience.Pacer
	http          *http.Client
}

// NewClient creates a new SP-API client. Default pacing matches the
// provider's published rates for the two endpoints: catalog-items allows
// roughly five requests per second, product-pricing one every two
// seconds.
func NewClient(accessToken string, opts ...Option) Client {
	c := &httpClient{
		accessToken:   accessToken,
		baseURL:       "https://sellingpartnerapi-eu.amazon.com",
		marketplaceID: "A1PA6795UKMFR9",
		condition:     "New",
		catalogPace:   resilience.NewPacer(220 * time.Millisecond),
		offersPace:    resilience.NewPacer(2 * time.Second),
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

func (c *httpClient) GetCatalogItem(ctx context.Context, asin string) (*CatalogItem, error) {
	if err := c.catalogPace.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "spapi: catalog pacing")
	}

	q := url.Values{}
	q.Set("marketplaceIds", c.marketplaceID)
	q.Set("includedData", "summaries,images")

	body, err := c.get(ctx, "/catalog/2022-04-01/items/"+url.PathEscape(asin), q)
	if err != nil {
		return nil, err
	}

	var item CatalogItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, eris.Wrap(err, "spapi: decode catalog item")
	}
	if item.ASIN == "" {
		item.ASIN = asin
	}
	return &item, nil
}

func (c *httpClient) GetItemOffers(ctx context.Context, asin string) (*OffersPayload, error) {
	if err := c.offersPace.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "spapi: offers pacing")
	}

	q := url.Values{}
	q.Set("MarketplaceId", c.marketplaceID)
	q.Set("ItemCondition", c.condition)

	body, err := c.get(ctx, "/products/pricing/v0/items/"+url.PathEscape(asin)+"/offers", q)
	if err != nil {
		return nil, err
	}

	var resp offersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "spapi: decode offers response")
	}
	return &resp.Payload, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "spapi: build request")
	}
	req.Header.Set("x-amz-access-token", c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "spapi: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "spapi: read response body")
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	httpErr := eris.New(fmt.Sprintf("spapi: HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.NewRateLimitError(httpErr, retryAfterHint(resp.Header))
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(httpErr, resp.StatusCode)
	}
	return nil, httpErr
}

// retryAfterHint reads the Retry-After header, when the provider sends
// one, as a whole number of seconds. Absent or unparseable means no hint.
func retryAfterHint(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
