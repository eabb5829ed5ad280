package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scriptify-labs/worker-cli/internal/enrich"
	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/runner"
)

// AnalyzeInput is the run input for product_analyze.
type AnalyzeInput struct {
	Items []model.Item `json:"items"`
}

// Analyze is the product analysis job: every item is classified and
// enriched, and the result is checkpointed after each item so progress
// survives cancellation.
type Analyze struct {
	enricher *enrich.Enricher
}

// NewAnalyze creates the analysis pipeline.
func NewAnalyze(enricher *enrich.Enricher) *Analyze {
	return &Analyze{enricher: enricher}
}

func (p *Analyze) Name() string { return "product_analyze" }

func (p *Analyze) Run(ctx context.Context, rc *runner.RunContext) (json.RawMessage, error) {
	var input AnalyzeInput
	if err := json.Unmarshal(rc.Run.Input, &input); err != nil {
		return nil, runner.Fatal(eris.Wrap(err, "analyze: parse input"))
	}
	if len(input.Items) == 0 {
		return nil, runner.Fatal(eris.New("analyze: no items in input"))
	}

	result := &model.AnalyzeResult{}
	for i, item := range input.Items {
		// Item boundaries are the cancellation poll points.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		enriched := p.enricher.Enrich(ctx, item)
		result.Items = append(result.Items, enriched)
		addToTotal(result, enriched)

		if len(enriched.Degraded) > 0 {
			rc.Log.Warn("item degraded",
				zap.String("item", item.Key),
				zap.Strings("degraded", enriched.Degraded))
		} else {
			rc.Log.Info("item enriched",
				zap.String("item", item.Key),
				zap.Int("done", i+1),
				zap.Int("of", len(input.Items)))
		}

		if err := rc.Result.Write(result); err != nil {
			return nil, err
		}
	}

	rc.Log.Info("analysis finished",
		zap.Int("items", len(result.Items)),
		zap.Float64("total_price", result.TotalPrice))

	return json.Marshal(result)
}

// addToTotal accumulates the run's market value: the lowest live offer
// when pricing succeeded, else the matched history price, scaled by the
// classified quantity.
func addToTotal(result *model.AnalyzeResult, item model.EnrichedItem) {
	price := 0.0
	currency := ""
	switch {
	case item.Pricing != nil && item.Pricing.MinPrice > 0:
		price = item.Pricing.MinPrice
		currency = item.Pricing.Currency
	case item.Match != nil && item.Match.Price > 0:
		price = item.Match.Price
		currency = item.Match.Currency
	default:
		return
	}

	qty := 1
	if len(item.Products) > 0 && item.Products[0].Quantity > 0 {
		qty = item.Products[0].Quantity
	}
	result.TotalPrice += price * float64(qty)
	if result.Currency == "" {
		result.Currency = currency
	}
}
