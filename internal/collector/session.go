// Package collector drives a browser session over a marketplace feed and
// assembles complete listings from the fragment streams the page emits.
// The page never answers a question directly: data arrives as a side
// effect of navigation, scrolling, and hovering, on uncorrelated
// responses that the collector classifies, extracts, and merges.
package collector

import (
	"bytes"
	"context"
	"strings"
)

// Session is one authenticated browser session. Implementations wrap a
// real browser driver; tests substitute a scripted fake.
type Session interface {
	// Navigate loads a URL and waits for the initial page load.
	Navigate(ctx context.Context, url string) error

	// LoggedIn reports whether the session still holds a valid login.
	LoggedIn(ctx context.Context) (bool, error)

	// ScrollToBottom scrolls the feed to its current end, prompting the
	// page to request more feed content.
	ScrollToBottom(ctx context.Context) error

	// Reveal interacts with one listing tile so the page loads its
	// photos and detail payloads.
	Reveal(ctx context.Context, key string) error

	// Responses delivers every network response the page produced, in
	// arrival order. The channel closes when the session closes.
	Responses() <-chan ResponseEvent

	// Close tears the session down.
	Close() error
}

// ResponseEvent is one network response captured from the page.
type ResponseEvent struct {
	URL    string
	Method string
	Body   []byte
}

// EventKind classifies a response by which fragment stream it belongs to.
type EventKind int

const (
	KindIgnore EventKind = iota
	KindFeed
	KindDetails
	KindPhotos
)

// Classify determines which fragment stream a response belongs to. Feed,
// detail, and photo payloads all arrive on the same graph endpoint and
// are told apart by their content; everything else is ignored.
func Classify(ev ResponseEvent) EventKind {
	if ev.Method != "POST" || !strings.Contains(ev.URL, "/api/graphql") {
		return KindIgnore
	}
	switch {
	case bytes.Contains(ev.Body, []byte(`"marketplace_search"`)):
		return KindFeed
	case bytes.Contains(ev.Body, []byte(`"marketplace_product_details_page"`)):
		return KindDetails
	case bytes.Contains(ev.Body, []byte(`"listing_photos"`)):
		return KindPhotos
	default:
		return KindIgnore
	}
}
