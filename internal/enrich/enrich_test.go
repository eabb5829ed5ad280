package enrich

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/resilience"
	"github.com/scriptify-labs/worker-cli/pkg/keepa"
	"github.com/scriptify-labs/worker-cli/pkg/spapi"
	"github.com/scriptify-labs/worker-cli/pkg/vision"
)

type fakeKeepa struct {
	asins      []string
	products   map[string]*keepa.Product
	searchErr  error
	productErr error
}

func (f *fakeKeepa) SearchASINs(ctx context.Context, term string) ([]string, error) {
	return f.asins, f.searchErr
}

func (f *fakeKeepa) Product(ctx context.Context, asin string) (*keepa.Product, error) {
	if f.productErr != nil {
		return nil, f.productErr
	}
	return f.products[asin], nil
}

type fakeSPAPI struct {
	catalog    *spapi.CatalogItem
	offers     *spapi.OffersPayload
	catalogErr error
	offersErr  error
}

func (f *fakeSPAPI) GetCatalogItem(ctx context.Context, asin string) (*spapi.CatalogItem, error) {
	return f.catalog, f.catalogErr
}

func (f *fakeSPAPI) GetItemOffers(ctx context.Context, asin string) (*spapi.OffersPayload, error) {
	return f.offers, f.offersErr
}

// slowSPAPI honors cancellation: the catalog lookup waits out a delay
// unless its context dies first, while the offers lookup fails at once.
type slowSPAPI struct {
	delay     time.Duration
	catalog   *spapi.CatalogItem
	offersErr error
}

func (f *slowSPAPI) GetCatalogItem(ctx context.Context, asin string) (*spapi.CatalogItem, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
		return f.catalog, nil
	}
}

func (f *slowSPAPI) GetItemOffers(ctx context.Context, asin string) (*spapi.OffersPayload, error) {
	return nil, f.offersErr
}

type fakeClassifier struct {
	products []vision.Product
	err      error
}

func (f *fakeClassifier) Classify(ctx context.Context, imageURLs []string) ([]vision.Product, error) {
	return f.products, f.err
}

func noRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 1}
}

func pricedProduct(asin, title string) *keepa.Product {
	return &keepa.Product{
		ASIN:  asin,
		Title: title,
		CSV:   [][]int64{{}, {100, 1999}, {}},
	}
}

func TestEnrich_AllSourcesSucceed(t *testing.T) {
	kp := &fakeKeepa{
		asins:    []string{"B001"},
		products: map[string]*keepa.Product{"B001": pricedProduct("B001", "Canon PG-540")},
	}
	sp := &fakeSPAPI{
		catalog: &spapi.CatalogItem{
			ASIN: "B001",
			Summaries: []spapi.ItemSummary{
				{MarketplaceID: "A1PA6795UKMFR9", ItemName: "Canon PG-540 Tinte"},
			},
		},
		offers: &spapi.OffersPayload{
			Summary: spapi.OfferSummary{
				TotalOfferCount: 2,
				LowestPrices:    []spapi.PriceEntry{{Condition: "new", LandedPrice: eur(18.49)}},
			},
		},
	}
	cls := &fakeClassifier{products: []vision.Product{{Title: "Canon PG-540", Quantity: 1}}}

	e := New(cls, kp, sp, nil, noRetry(), Config{MarketplaceID: "A1PA6795UKMFR9"})
	got := e.Enrich(context.Background(), model.Item{Key: "i1", ImageURLs: []string{"img"}})

	if len(got.Degraded) != 0 {
		t.Fatalf("unexpected degradations: %v", got.Degraded)
	}
	if got.Match == nil || got.Match.ASIN != "B001" || got.Match.Price != 19.99 {
		t.Errorf("bad market match: %+v", got.Match)
	}
	if got.Catalog == nil || got.Catalog.Title != "Canon PG-540 Tinte" {
		t.Errorf("bad catalog payload: %+v", got.Catalog)
	}
	if got.Pricing == nil || got.Pricing.MinPrice != 18.49 || got.Pricing.OfferCount != 2 {
		t.Errorf("bad pricing payload: %+v", got.Pricing)
	}
}

func TestEnrich_PricingFailureKeepsCatalog(t *testing.T) {
	kp := &fakeKeepa{
		asins:    []string{"B001"},
		products: map[string]*keepa.Product{"B001": pricedProduct("B001", "Canon PG-540")},
	}
	sp := &fakeSPAPI{
		catalog:   &spapi.CatalogItem{ASIN: "B001"},
		offersErr: eris.New("offers endpoint down"),
	}

	e := New(nil, kp, sp, nil, noRetry(), Config{})
	got := e.Enrich(context.Background(), model.Item{Key: "i1", Title: "Canon PG-540"})

	if got.Catalog == nil {
		t.Error("catalog payload must survive a pricing failure")
	}
	if got.Pricing != nil {
		t.Error("failed pricing must stay nil")
	}
	if len(got.Degraded) != 1 || !strings.Contains(got.Degraded[0], "pricing") {
		t.Errorf("expected one pricing degradation, got %v", got.Degraded)
	}
	if got.Match == nil {
		t.Error("market match must survive a pricing failure")
	}
}

func TestEnrich_FastPricingFailureDoesNotCancelCatalog(t *testing.T) {
	kp := &fakeKeepa{
		asins:    []string{"B001"},
		products: map[string]*keepa.Product{"B001": pricedProduct("B001", "Canon PG-540")},
	}
	// The offers lookup fails immediately while the catalog lookup is
	// still in flight. The slow lookup must run to completion anyway.
	sp := &slowSPAPI{
		delay:     50 * time.Millisecond,
		catalog:   &spapi.CatalogItem{ASIN: "B001"},
		offersErr: eris.New("offers endpoint down"),
	}

	e := New(nil, kp, sp, nil, noRetry(), Config{})
	got := e.Enrich(context.Background(), model.Item{Key: "i1", Title: "Canon PG-540"})

	if got.Catalog == nil {
		t.Error("catalog payload must not be cut short by the pricing failure")
	}
	if len(got.Degraded) != 1 || !strings.Contains(got.Degraded[0], "pricing") {
		t.Errorf("expected only the pricing degradation, got %v", got.Degraded)
	}
}

func TestEnrich_BothSourcesFailRecordsBoth(t *testing.T) {
	kp := &fakeKeepa{
		asins:    []string{"B001"},
		products: map[string]*keepa.Product{"B001": pricedProduct("B001", "Canon PG-540")},
	}
	sp := &fakeSPAPI{
		catalogErr: eris.New("catalog down"),
		offersErr:  eris.New("offers down"),
	}

	e := New(nil, kp, sp, nil, noRetry(), Config{})
	got := e.Enrich(context.Background(), model.Item{Key: "i1", Title: "Canon PG-540"})

	if len(got.Degraded) != 2 {
		t.Fatalf("both failed sources must degrade, got %v", got.Degraded)
	}
	if !strings.Contains(got.Degraded[0], "catalog") || !strings.Contains(got.Degraded[1], "pricing") {
		t.Errorf("degradations must name each source, got %v", got.Degraded)
	}
	if got.Catalog != nil || got.Pricing != nil {
		t.Error("failed sources must leave nil payloads")
	}
	if got.Match == nil {
		t.Error("market match must survive both failures")
	}
}

func TestEnrich_ClassifyFailureIsDegradedNotFatal(t *testing.T) {
	kp := &fakeKeepa{
		asins:    []string{"B001"},
		products: map[string]*keepa.Product{"B001": pricedProduct("B001", "Canon PG-540")},
	}
	sp := &fakeSPAPI{
		catalog: &spapi.CatalogItem{ASIN: "B001"},
		offers: &spapi.OffersPayload{
			Summary: spapi.OfferSummary{
				LowestPrices: []spapi.PriceEntry{{Condition: "new", LandedPrice: eur(10)}},
			},
		},
	}
	cls := &fakeClassifier{err: eris.New("model unavailable")}

	e := New(cls, kp, sp, nil, noRetry(), Config{})
	got := e.Enrich(context.Background(), model.Item{
		Key: "i1", Title: "Canon PG-540", ImageURLs: []string{"img"},
	})

	if len(got.Degraded) != 1 || !strings.Contains(got.Degraded[0], "classify") {
		t.Errorf("expected classify degradation, got %v", got.Degraded)
	}
	if got.Match == nil || got.Pricing == nil {
		t.Error("item fields must still drive the match when classification fails")
	}
}

func TestEnrich_NoSearchableTitle(t *testing.T) {
	e := New(nil, &fakeKeepa{}, &fakeSPAPI{}, nil, noRetry(), Config{})
	got := e.Enrich(context.Background(), model.Item{Key: "i1"})

	if got.Match != nil {
		t.Error("no title must mean no match")
	}
	if len(got.Degraded) != 1 {
		t.Errorf("expected one degradation, got %v", got.Degraded)
	}
}

func TestMatchMarket_WalksCandidatesUntilPriced(t *testing.T) {
	kp := &fakeKeepa{
		asins: []string{"B001", "B002", "B003"},
		products: map[string]*keepa.Product{
			"B001": {ASIN: "B001", Title: "stale", CSV: [][]int64{{}, {100, -1}, {}}},
			"B002": {ASIN: "B002", Title: "priced", CSV: [][]int64{{}, {100, 2500}, {}}},
		},
	}
	e := New(nil, kp, &fakeSPAPI{}, nil, noRetry(), Config{TopNProducts: 3})

	m, err := e.matchMarket(context.Background(), "term")
	if err != nil {
		t.Fatal(err)
	}
	if m.ASIN != "B002" || m.Price != 25.00 {
		t.Errorf("expected first priced candidate B002 at 25.00, got %+v", m)
	}
}

func TestMatchMarket_PricelessFallback(t *testing.T) {
	kp := &fakeKeepa{
		asins: []string{"B001"},
		products: map[string]*keepa.Product{
			"B001": {ASIN: "B001", Title: "listed but never sold", CSV: [][]int64{{}, {}, {}}},
		},
	}
	e := New(nil, kp, &fakeSPAPI{}, nil, noRetry(), Config{})

	m, err := e.matchMarket(context.Background(), "term")
	if err != nil {
		t.Fatal(err)
	}
	if m.ASIN != "B001" || m.Price != 0 {
		t.Errorf("expected priceless fallback to first candidate, got %+v", m)
	}
}

func TestSearchTerm(t *testing.T) {
	item := model.Item{Brand: "Canon", Title: "PG-540", Model: "5225B001"}
	if got := searchTerm(item, nil); got != "Canon PG-540 5225B001" {
		t.Errorf("item term: got %q", got)
	}

	products := []model.ClassifiedProduct{{Title: "PG-540 XL", Brand: "Canon"}}
	if got := searchTerm(item, products); got != "Canon PG-540 XL" {
		t.Errorf("classified term should prefix brand: got %q", got)
	}

	products[0].Title = "Canon PG-540 XL"
	if got := searchTerm(item, products); got != "Canon PG-540 XL" {
		t.Errorf("brand already in title must not repeat: got %q", got)
	}
}
