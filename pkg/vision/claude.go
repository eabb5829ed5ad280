package vision

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

type claudeClassifier struct {
	client    sdk.Client
	model     string
	maxImages int
}

func newClaudeClassifier(cfg Config) *claudeClassifier {
	model := cfg.ClaudeModel
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	return &claudeClassifier{
		client:    sdk.NewClient(option.WithAPIKey(cfg.AnthropicKey)),
		model:     model,
		maxImages: cfg.MaxImages,
	}
}

func (c *claudeClassifier) Classify(ctx context.Context, imageURLs []string) ([]Product, error) {
	urls := capImages(imageURLs, c.maxImages)
	if len(urls) == 0 {
		return nil, eris.New("vision: no images to classify")
	}

	blocks := make([]sdk.ContentBlockParamUnion, 0, len(urls)+1)
	for _, u := range urls {
		blocks = append(blocks, sdk.ContentBlockParamUnion{
			OfImage: &sdk.ImageBlockParam{
				Source: sdk.ImageBlockParamSourceUnion{
					OfURL: &sdk.URLImageSourceParam{URL: u},
				},
			},
		})
	}
	blocks = append(blocks, sdk.NewTextBlock(classifyPrompt))

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 1024,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		return nil, eris.Wrap(err, "vision: claude message")
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return parseProducts(text.String())
}
