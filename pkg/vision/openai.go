package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scriptify-labs/worker-cli/internal/resilience"
)

type openAIClassifier struct {
	apiKey    string
	baseURL   string
	model     string
	maxImages int
	http      *http.Client
}

func newOpenAIClassifier(cfg Config) *openAIClassifier {
	base := cfg.OpenAIBase
	if base == "" {
		base = "https://api.openai.com"
	}
	model := cfg.OpenAIModel
	if model == "" {
		model = "gpt-4o"
	}
	return &openAIClassifier{
		apiKey:    cfg.OpenAIKey,
		baseURL:   base,
		model:     model,
		maxImages: cfg.MaxImages,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiMessage struct {
	Role    string           `json:"role"`
	Content []oaiContentPart `json:"content"`
}

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClassifier) Classify(ctx context.Context, imageURLs []string) ([]Product, error) {
	urls := capImages(imageURLs, c.maxImages)
	if len(urls) == 0 {
		return nil, eris.New("vision: no images to classify")
	}

	parts := make([]oaiContentPart, 0, len(urls)+1)
	for _, u := range urls {
		parts = append(parts, oaiContentPart{Type: "image_url", ImageURL: &oaiImageURL{URL: u}})
	}
	parts = append(parts, oaiContentPart{Type: "text", Text: classifyPrompt})

	payload, err := json.Marshal(oaiRequest{
		Model:    c.model,
		Messages: []oaiMessage{{Role: "user", Content: parts}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "vision: encode openai request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "vision: build openai request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "vision: openai request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "vision: read openai response")
	}

	if resp.StatusCode != http.StatusOK {
		httpErr := eris.New(fmt.Sprintf("vision: openai HTTP %d", resp.StatusCode))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(httpErr, resp.StatusCode)
		}
		return nil, httpErr
	}

	var out oaiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "vision: decode openai response")
	}
	if len(out.Choices) == 0 {
		return nil, eris.New("vision: openai returned no choices")
	}
	return parseProducts(out.Choices[0].Message.Content)
}
