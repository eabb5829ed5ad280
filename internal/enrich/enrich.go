// Package enrich turns a bare item into an enriched one by combining a
// photo classification, a price-history match, and two catalog/pricing
// lookups. Each source can fail independently; a failed source is noted
// on the item and the remaining payloads are kept.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/resilience"
	"github.com/scriptify-labs/worker-cli/pkg/keepa"
	"github.com/scriptify-labs/worker-cli/pkg/spapi"
	"github.com/scriptify-labs/worker-cli/pkg/vision"
)

// Config tunes the enrichment stage.
type Config struct {
	// MarketplaceID scopes catalog summaries and images.
	MarketplaceID string
	// Condition restricts offer selection ("new").
	Condition string
	// TopNProducts bounds how many search candidates are price-checked.
	TopNProducts int
	// ProductURLBase is the storefront the matched product links point at.
	ProductURLBase string
}

// Enricher runs the enrichment stage for one pipeline run.
type Enricher struct {
	classifier vision.Classifier
	keepa      keepa.Client
	spapi      spapi.Client
	keepaPace  *resilience.Pacer
	retry      resilience.RetryConfig
	cfg        Config
}

// New assembles an enricher. classifier may be nil when items arrive
// pre-identified.
func New(classifier vision.Classifier, kp keepa.Client, sp spapi.Client,
	keepaPace *resilience.Pacer, retry resilience.RetryConfig, cfg Config) *Enricher {
	if cfg.Condition == "" {
		cfg.Condition = "new"
	}
	if cfg.TopNProducts <= 0 {
		cfg.TopNProducts = 3
	}
	if cfg.ProductURLBase == "" {
		cfg.ProductURLBase = "https://www.amazon.de"
	}
	if keepaPace == nil {
		keepaPace = resilience.NewPacer(0)
	}
	return &Enricher{
		classifier: classifier,
		keepa:      kp,
		spapi:      sp,
		keepaPace:  keepaPace,
		retry:      retry,
		cfg:        cfg,
	}
}

// Enrich runs all enrichment sources for one item. It never fails the
// item outright: every source error becomes a degradation note and the
// payloads that did arrive are returned.
func (e *Enricher) Enrich(ctx context.Context, item model.Item) model.EnrichedItem {
	out := model.EnrichedItem{Item: item}

	if e.classifier != nil && len(item.ImageURLs) > 0 {
		products, err := e.classify(ctx, item)
		if err != nil {
			out.Degraded = append(out.Degraded, "classify: "+err.Error())
			zap.L().Warn("classification failed",
				zap.String("item", item.Key), zap.Error(err))
		} else {
			out.Products = products
		}
	}

	term := searchTerm(item, out.Products)
	if term == "" {
		out.Degraded = append(out.Degraded, "match: no searchable title")
		return out
	}

	match, err := e.matchMarket(ctx, term)
	if err != nil {
		out.Degraded = append(out.Degraded, "match: "+err.Error())
		zap.L().Warn("market match failed",
			zap.String("item", item.Key), zap.String("term", term), zap.Error(err))
		return out
	}
	out.Match = match

	// Catalog and pricing are throttled by the provider independently, so
	// the two lookups run in parallel. Each failure degrades on its own:
	// the group shares no context, so one source failing never cuts the
	// other one short.
	var g errgroup.Group
	var catalogErr, pricingErr error
	g.Go(func() error {
		var catalog *model.CatalogData
		if catalog, catalogErr = e.fetchCatalog(ctx, match.ASIN); catalogErr == nil {
			out.Catalog = catalog
		}
		return nil
	})
	g.Go(func() error {
		var pricing *model.PricingData
		if pricing, pricingErr = e.fetchPricing(ctx, match.ASIN); pricingErr == nil {
			out.Pricing = pricing
		}
		return nil
	})
	g.Wait() //nolint:errcheck

	if catalogErr != nil {
		out.Degraded = append(out.Degraded, "catalog: "+catalogErr.Error())
		zap.L().Warn("catalog lookup failed",
			zap.String("item", item.Key), zap.String("asin", match.ASIN), zap.Error(catalogErr))
	}
	if pricingErr != nil {
		out.Degraded = append(out.Degraded, "pricing: "+pricingErr.Error())
		zap.L().Warn("pricing lookup failed",
			zap.String("item", item.Key), zap.String("asin", match.ASIN), zap.Error(pricingErr))
	}

	return out
}

func (e *Enricher) classify(ctx context.Context, item model.Item) ([]model.ClassifiedProduct, error) {
	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger("vision", "classify")

	raw, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]vision.Product, error) {
		return e.classifier.Classify(ctx, item.ImageURLs)
	})
	if err != nil {
		return nil, err
	}

	products := make([]model.ClassifiedProduct, len(raw))
	for i, p := range raw {
		products[i] = model.ClassifiedProduct{
			Title:    p.Title,
			Brand:    p.Brand,
			Model:    p.Model,
			Quantity: p.Quantity,
		}
	}
	return products, nil
}

// matchMarket searches the price-history service for the term and walks
// the top candidates until one has a recent valid price. When every
// candidate is priceless the first one is returned without a price so the
// item still links somewhere.
func (e *Enricher) matchMarket(ctx context.Context, term string) (*model.MarketMatch, error) {
	searchCfg := e.retry
	searchCfg.OnRetry = resilience.RetryLogger("keepa", "search")

	if err := e.keepaPace.Wait(ctx); err != nil {
		return nil, err
	}
	asins, err := resilience.DoVal(ctx, searchCfg, func(ctx context.Context) ([]string, error) {
		return e.keepa.SearchASINs(ctx, term)
	})
	if err != nil {
		return nil, err
	}
	if len(asins) == 0 {
		return nil, eris.New("no candidates for term")
	}
	if len(asins) > e.cfg.TopNProducts {
		asins = asins[:e.cfg.TopNProducts]
	}

	productCfg := e.retry
	productCfg.OnRetry = resilience.RetryLogger("keepa", "product")

	var fallback *model.MarketMatch
	for _, asin := range asins {
		if err := e.keepaPace.Wait(ctx); err != nil {
			return nil, err
		}
		product, err := resilience.DoVal(ctx, productCfg, func(ctx context.Context) (*keepa.Product, error) {
			return e.keepa.Product(ctx, asin)
		})
		if err != nil {
			zap.L().Warn("product lookup failed", zap.String("asin", asin), zap.Error(err))
			continue
		}
		if product == nil {
			continue
		}

		m := &model.MarketMatch{
			ASIN:  product.ASIN,
			Title: product.Title,
			URL:   e.cfg.ProductURLBase + "/dp/" + product.ASIN,
		}
		price, ts, ok := keepa.LatestPriceAny(product.CSV,
			keepa.SeriesAmazon, keepa.SeriesNew, keepa.SeriesUsed)
		if ok {
			m.Price = price
			m.Currency = "EUR"
			m.PriceTime = ts.Format("2006-01-02T15:04:05Z")
			return m, nil
		}
		if fallback == nil {
			fallback = m
		}
	}

	if fallback != nil {
		return fallback, nil
	}
	return nil, eris.New("no candidate resolved to a product")
}

func (e *Enricher) fetchCatalog(ctx context.Context, asin string) (*model.CatalogData, error) {
	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger("spapi", "catalog")

	item, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*spapi.CatalogItem, error) {
		return e.spapi.GetCatalogItem(ctx, asin)
	})
	if err != nil {
		return nil, err
	}
	return &model.CatalogData{
		Title:      item.Title(e.cfg.MarketplaceID),
		Images:     item.BestImages(e.cfg.MarketplaceID),
		ProductURL: e.cfg.ProductURLBase + "/dp/" + asin,
	}, nil
}

func (e *Enricher) fetchPricing(ctx context.Context, asin string) (*model.PricingData, error) {
	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger("spapi", "offers")

	payload, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*spapi.OffersPayload, error) {
		return e.spapi.GetItemOffers(ctx, asin)
	})
	if err != nil {
		return nil, err
	}

	sel, ok := SelectOffer(payload, e.cfg.Condition)
	if !ok {
		return nil, eris.New(fmt.Sprintf("no %s offers for %s", e.cfg.Condition, asin))
	}

	data := &model.PricingData{
		MinPrice:   sel.MinLanded,
		Currency:   sel.Currency,
		OfferCount: payload.Summary.TotalOfferCount,
	}
	if sel.Offer != nil {
		data.OfferURL = e.cfg.ProductURLBase + "/gp/offer-listing/" + asin
	}
	return data, nil
}

// searchTerm builds the query for the price-history search. A classified
// product wins over the item's own fields because classification reads
// the actual photos.
func searchTerm(item model.Item, products []model.ClassifiedProduct) string {
	if len(products) > 0 && products[0].Title != "" {
		p := products[0]
		if p.Brand != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(p.Brand)) {
			return p.Brand + " " + p.Title
		}
		return p.Title
	}

	var parts []string
	for _, s := range []string{item.Brand, item.Title, item.Model} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
