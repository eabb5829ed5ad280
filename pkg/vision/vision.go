// Package vision identifies products from item photographs using a
// multimodal model. Two backends are supported; the backend is picked
// once per run from configuration, never per item.
package vision

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Product is one product identified in a set of photos.
type Product struct {
	Title    string `json:"title"`
	Brand    string `json:"brand,omitempty"`
	Model    string `json:"model,omitempty"`
	Quantity int    `json:"quantity"`
}

// Classifier identifies the products visible in a set of image URLs.
type Classifier interface {
	Classify(ctx context.Context, imageURLs []string) ([]Product, error)
}

// Config selects and configures a classifier backend.
type Config struct {
	Strategy     string // "claude" or "openai"
	AnthropicKey string
	ClaudeModel  string
	OpenAIKey    string
	OpenAIModel  string
	OpenAIBase   string
	MaxImages    int
}

// New builds the classifier for the configured strategy.
func New(cfg Config) (Classifier, error) {
	switch cfg.Strategy {
	case "claude":
		if cfg.AnthropicKey == "" {
			return nil, eris.New("vision: claude strategy requires an anthropic api key")
		}
		return newClaudeClassifier(cfg), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, eris.New("vision: openai strategy requires an openai api key")
		}
		return newOpenAIClassifier(cfg), nil
	default:
		return nil, eris.New("vision: unknown strategy " + cfg.Strategy)
	}
}

const classifyPrompt = `Identify every distinct product visible in these photos of a single marketplace listing.
Return ONLY a JSON array, no prose, where each element has:
  "title": full product name as it would appear in a shop listing,
  "brand": manufacturer if identifiable, else omit,
  "model": model number if identifiable, else omit,
  "quantity": how many units of this product the photos show.
If the photos show one product, return a one-element array.`

// parseProducts decodes the model's answer, tolerating a markdown code
// fence around the JSON array.
func parseProducts(text string) ([]Product, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "["); i >= 0 {
		if j := strings.LastIndex(s, "]"); j > i {
			s = s[i : j+1]
		}
	}

	var products []Product
	if err := json.Unmarshal([]byte(s), &products); err != nil {
		return nil, eris.Wrap(err, "vision: decode classification")
	}
	for i := range products {
		if products[i].Quantity < 1 {
			products[i].Quantity = 1
		}
	}
	return products, nil
}

// capImages limits how many photos are sent per request.
func capImages(urls []string, max int) []string {
	if max > 0 && len(urls) > max {
		return urls[:max]
	}
	return urls
}
