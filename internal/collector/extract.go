package collector

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/scriptify-labs/worker-cli/internal/accumulator"
)

// FeedEntry is one listing discovered on the feed: the key plus the
// fragment of fields the feed itself carries.
type FeedEntry struct {
	Key    string
	Fields accumulator.Fields
}

// DetailEntry is the detail fragment for one listing.
type DetailEntry struct {
	Key    string
	Fields accumulator.Fields
}

// ExtractFeed pulls the listings out of a feed response. The payload is
// deeply nested and any level can be missing or null, so every step is
// checked and a malformed edge is skipped rather than failing the batch.
func ExtractFeed(body []byte, linkBase string) []FeedEntry {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil
	}

	edges := digSlice(root, "data", "marketplace_search", "feed_units", "edges")
	var out []FeedEntry
	for _, e := range edges {
		edge, ok := e.(map[string]any)
		if !ok {
			continue
		}
		listing := digMap(edge, "node", "listing")
		if listing == nil {
			continue
		}
		key := digString(listing, "id")
		if key == "" {
			continue
		}

		f := accumulator.Fields{
			Link:     listingLink(linkBase, key),
			Title:    digString(listing, "marketplace_listing_title"),
			Price:    digString(listing, "listing_price", "amount"),
			Currency: digString(listing, "listing_price", "currency"),
		}
		if uri := digString(listing, "primary_listing_photo", "image", "uri"); uri != "" {
			f.ImageURLs = []string{uri}
		}
		if ct := digFloat(listing, "creation_time"); ct > 0 {
			t := time.Unix(int64(ct), 0).UTC()
			f.ListedAt = &t
		}
		out = append(out, FeedEntry{Key: key, Fields: f})
	}
	return out
}

// ExtractDetails pulls the detail fragment out of a product-details
// response: the description and the full photo set.
func ExtractDetails(body []byte, linkBase string) (DetailEntry, bool) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return DetailEntry{}, false
	}

	target := digMap(root, "data", "viewer", "marketplace_product_details_page", "target")
	if target == nil {
		return DetailEntry{}, false
	}
	key := digString(target, "id")
	if key == "" {
		return DetailEntry{}, false
	}

	f := accumulator.Fields{
		Link:        listingLink(linkBase, key),
		Title:       digString(target, "marketplace_listing_title"),
		Description: digString(target, "redacted_description", "text"),
		Price:       digString(target, "listing_price", "amount"),
		Currency:    digString(target, "listing_price", "currency"),
	}
	for _, p := range digSlice(target, "listing_photos") {
		photo, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if uri := digString(photo, "image", "uri"); uri != "" {
			f.ImageURLs = append(f.ImageURLs, uri)
		}
	}
	return DetailEntry{Key: key, Fields: f}, true
}

// ExtractPhotos pulls the photo fragment for one listing out of a photo
// response.
func ExtractPhotos(body []byte) (string, []string) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", nil
	}

	node := digMap(root, "data", "node")
	if node == nil {
		return "", nil
	}
	key := digString(node, "id")
	if key == "" {
		return "", nil
	}

	var urls []string
	for _, p := range digSlice(node, "listing_photos") {
		photo, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if uri := digString(photo, "image", "uri"); uri != "" {
			urls = append(urls, uri)
		}
	}
	return key, urls
}

func listingLink(base, key string) string {
	return base + "/marketplace/item/" + key
}

// dig walks a chain of object keys, returning nil when any step is
// missing or not an object.
func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[k]
		if !ok {
			return nil
		}
	}
	return cur
}

func digMap(m map[string]any, keys ...string) map[string]any {
	v, _ := dig(m, keys...).(map[string]any)
	return v
}

func digSlice(m map[string]any, keys ...string) []any {
	v, _ := dig(m, keys...).([]any)
	return v
}

// digString returns the value at the key path as a string, rendering
// numeric values so price amounts survive either representation.
func digString(m map[string]any, keys ...string) string {
	switch v := dig(m, keys...).(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	default:
		return ""
	}
}

func digFloat(m map[string]any, keys ...string) float64 {
	v, _ := dig(m, keys...).(float64)
	return v
}
