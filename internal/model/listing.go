package model

import "time"

// Listing is one scraped marketplace record, assembled by the accumulator
// from fragments arriving on independent response streams.
type Listing struct {
	// DisplayID is a run-local sequential index assigned at flush time.
	DisplayID int `json:"id"`
	// Key is the marketplace-assigned opaque listing ID.
	Key string `json:"key"`

	Link        string     `json:"link"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Price       string     `json:"price"`
	Currency    string     `json:"currency"`
	ImageURLs   []string   `json:"image_urls"`
	ListedAt    *time.Time `json:"listed_at,omitempty"`
}

// ScrapeResult is the checkpointed result payload of a marketplace scrape
// run: listings grouped by collection unit (city).
type ScrapeResult struct {
	Cities     map[string][]Listing `json:"results"`
	TotalCount int                  `json:"total_count"`
	Timestamp  time.Time            `json:"timestamp"`
}
