package model

// Item is one unit of input to the product analysis pipeline: a product
// with photos, optionally pre-identified.
type Item struct {
	Key       string   `json:"key"`
	Title     string   `json:"title,omitempty"`
	Brand     string   `json:"brand,omitempty"`
	Model     string   `json:"model,omitempty"`
	Quantity  int      `json:"quantity,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// CatalogData is the catalog enrichment payload for an item: title, image
// set, and product URL from the catalog lookup service.
type CatalogData struct {
	Title      string   `json:"title"`
	Images     []string `json:"images"`
	ProductURL string   `json:"product_url"`
}

// PricingData is the pricing enrichment payload for an item: the lowest
// landed price across all offer sources and the matching offer's URL.
type PricingData struct {
	MinPrice   float64 `json:"min_price"`
	Currency   string  `json:"currency"`
	OfferURL   string  `json:"offer_url,omitempty"`
	OfferCount int     `json:"total_offer_count"`
}

// MarketMatch is the marketplace price match found for an item by the
// price-history lookup: the first candidate product with a valid recent
// price, or a priceless fallback.
type MarketMatch struct {
	ASIN      string  `json:"asin"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	PriceTime string  `json:"price_time,omitempty"`
	URL       string  `json:"url"`
}

// ClassifiedProduct is one product identified in an item's photos.
type ClassifiedProduct struct {
	Title    string `json:"title"`
	Brand    string `json:"brand,omitempty"`
	Model    string `json:"model,omitempty"`
	Quantity int    `json:"quantity"`
}

// EnrichedItem is the output of the enrichment stage for a single item.
// Each enrichment payload is independently nullable: failure of one source
// never discards the primary payload or the other source's result.
type EnrichedItem struct {
	Item     Item                `json:"item"`
	Products []ClassifiedProduct `json:"products,omitempty"`
	Match    *MarketMatch        `json:"market_match,omitempty"`
	Catalog  *CatalogData        `json:"catalog,omitempty"`
	Pricing  *PricingData        `json:"pricing,omitempty"`

	// Degraded lists the per-item failures recorded while enriching, one
	// human-readable entry per failed source.
	Degraded []string `json:"degraded,omitempty"`
}

// AnalyzeResult is the checkpointed result payload of a product analysis
// run.
type AnalyzeResult struct {
	Items      []EnrichedItem `json:"items"`
	TotalPrice float64        `json:"total_price"`
	Currency   string         `json:"currency,omitempty"`
}
