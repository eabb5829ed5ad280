package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/scriptify-labs/worker-cli/internal/enrich"
	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/resilience"
	"github.com/scriptify-labs/worker-cli/internal/runner"
	"github.com/scriptify-labs/worker-cli/pkg/keepa"
	"github.com/scriptify-labs/worker-cli/pkg/spapi"
	"github.com/scriptify-labs/worker-cli/pkg/vision"
)

type stubKeepa struct {
	searches int
	onSearch func(n int)
	products map[string]*keepa.Product
}

func (f *stubKeepa) SearchASINs(ctx context.Context, term string) ([]string, error) {
	f.searches++
	if f.onSearch != nil {
		f.onSearch(f.searches)
	}
	return []string{"B001"}, nil
}

func (f *stubKeepa) Product(ctx context.Context, asin string) (*keepa.Product, error) {
	return f.products[asin], nil
}

type stubSPAPI struct {
	offers    *spapi.OffersPayload
	offersErr error
}

func (f *stubSPAPI) GetCatalogItem(ctx context.Context, asin string) (*spapi.CatalogItem, error) {
	return &spapi.CatalogItem{ASIN: asin}, nil
}

func (f *stubSPAPI) GetItemOffers(ctx context.Context, asin string) (*spapi.OffersPayload, error) {
	return f.offers, f.offersErr
}

type stubClassifier struct {
	products []vision.Product
}

func (f *stubClassifier) Classify(ctx context.Context, imageURLs []string) ([]vision.Product, error) {
	return f.products, nil
}

// newTestEnricher wires an enricher whose match resolves to 19.99 EUR and
// whose live offers land at 15.00 EUR.
func newTestEnricher(kp keepa.Client, sp spapi.Client, cls vision.Classifier) *enrich.Enricher {
	return enrich.New(cls, kp, sp, nil,
		resilience.RetryConfig{MaxAttempts: 1}, enrich.Config{})
}

func testOffers(landed float64) *spapi.OffersPayload {
	return &spapi.OffersPayload{
		Summary: spapi.OfferSummary{
			TotalOfferCount: 1,
			LowestPrices: []spapi.PriceEntry{{
				Condition:   "new",
				LandedPrice: spapi.Money{CurrencyCode: "EUR", Amount: landed},
			}},
		},
	}
}

func pricedKeepaProduct() map[string]*keepa.Product {
	return map[string]*keepa.Product{
		"B001": {ASIN: "B001", Title: "Canon PG-540", CSV: [][]int64{{}, {100, 1999}, {}}},
	}
}

func TestAnalyze_Run(t *testing.T) {
	kp := &stubKeepa{products: pricedKeepaProduct()}
	sp := &stubSPAPI{offers: testOffers(15)}
	cls := &stubClassifier{products: []vision.Product{{Title: "Canon PG-540", Quantity: 2}}}
	p := NewAnalyze(newTestEnricher(kp, sp, cls))

	rc := newRunContext(t, `{"items":[
		{"key":"i1","title":"Canon PG-540","image_urls":["https://img/1.jpg"]},
		{"key":"i2","title":"Canon PG-540"}
	]}`)
	raw, err := p.Run(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}

	var result model.AnalyzeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	// i1 carries quantity 2 from classification, i2 defaults to 1.
	if result.TotalPrice != 15*2+15 {
		t.Errorf("total price: got %v, want 45", result.TotalPrice)
	}
	if result.Currency != "EUR" {
		t.Errorf("currency: got %q", result.Currency)
	}

	checkpoint, err := runner.ReadResult(rc.Result.Path())
	if err != nil {
		t.Fatal(err)
	}
	var fromDisk model.AnalyzeResult
	if err := json.Unmarshal(checkpoint, &fromDisk); err != nil {
		t.Fatal(err)
	}
	if len(fromDisk.Items) != 2 {
		t.Errorf("checkpoint must hold all items, got %d", len(fromDisk.Items))
	}
}

func TestAnalyze_FallsBackToMatchPrice(t *testing.T) {
	kp := &stubKeepa{products: pricedKeepaProduct()}
	sp := &stubSPAPI{offersErr: errors.New("offers down")}
	p := NewAnalyze(newTestEnricher(kp, sp, nil))

	rc := newRunContext(t, `{"items":[{"key":"i1","title":"Canon PG-540"}]}`)
	raw, err := p.Run(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}

	var result model.AnalyzeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if result.TotalPrice != 19.99 {
		t.Errorf("total must fall back to the match price, got %v", result.TotalPrice)
	}
	if len(result.Items[0].Degraded) == 0 {
		t.Error("failed pricing must be recorded as a degradation")
	}
}

func TestAnalyze_InvalidInputIsFatal(t *testing.T) {
	p := NewAnalyze(newTestEnricher(&stubKeepa{}, &stubSPAPI{}, nil))

	for _, input := range []string{`not json`, `{}`, `{"items":[]}`} {
		rc := newRunContext(t, input)
		_, err := p.Run(context.Background(), rc)
		if err == nil || !runner.IsFatal(err) {
			t.Errorf("input %q: expected fatal error, got %v", input, err)
		}
	}
}

func TestAnalyze_CancelStopsAtItemBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kp := &stubKeepa{
		products: pricedKeepaProduct(),
		onSearch: func(n int) {
			if n == 2 {
				cancel()
			}
		},
	}
	sp := &stubSPAPI{offers: testOffers(15)}
	p := NewAnalyze(newTestEnricher(kp, sp, nil))

	rc := newRunContext(t, `{"items":[
		{"key":"i1","title":"a"},
		{"key":"i2","title":"b"},
		{"key":"i3","title":"c"}
	]}`)
	_, err := p.Run(ctx, rc)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runner.IsFatal(err) {
		t.Error("cancellation must not be classified as fatal")
	}

	// Both processed items must already be on disk.
	checkpoint, err := runner.ReadResult(rc.Result.Path())
	if err != nil {
		t.Fatal(err)
	}
	var fromDisk model.AnalyzeResult
	if err := json.Unmarshal(checkpoint, &fromDisk); err != nil {
		t.Fatal(err)
	}
	if len(fromDisk.Items) != 2 {
		t.Errorf("checkpoint must hold the items finished before the cancel, got %d", len(fromDisk.Items))
	}
}
