package enrich

import (
	"testing"

	"github.com/scriptify-labs/worker-cli/pkg/spapi"
)

func eur(amount float64) spapi.Money {
	return spapi.Money{CurrencyCode: "EUR", Amount: amount}
}

func TestSelectOffer_ConditionFilterAndBuyBoxPreference(t *testing.T) {
	p := &spapi.OffersPayload{
		Offers: []spapi.Offer{
			{SubCondition: "new", SellerID: "A", ListingPrice: eur(19.99)},
			{SubCondition: "used", SellerID: "B", ListingPrice: eur(17.50)},
			{SubCondition: "new", SellerID: "C", ListingPrice: eur(19.99), IsBuyBoxWinner: true},
		},
	}

	sel, ok := SelectOffer(p, "new")
	if !ok {
		t.Fatal("expected a selection")
	}
	if sel.MinLanded != 19.99 {
		t.Errorf("used offer leaked into minimum: got %.2f, want 19.99", sel.MinLanded)
	}
	if sel.Offer == nil || sel.Offer.SellerID != "C" {
		t.Errorf("buy-box winner at the minimum must be preferred, got %+v", sel.Offer)
	}
}

func TestSelectOffer_MinAcrossSummariesAndOffers(t *testing.T) {
	p := &spapi.OffersPayload{
		Summary: spapi.OfferSummary{
			LowestPrices: []spapi.PriceEntry{
				{Condition: "new", LandedPrice: eur(15.00)},
			},
			BuyBoxPrices: []spapi.PriceEntry{
				{Condition: "New", LandedPrice: eur(16.50)},
			},
		},
		Offers: []spapi.Offer{
			{SubCondition: "new", SellerID: "A", ListingPrice: eur(18.00)},
		},
	}

	sel, ok := SelectOffer(p, "new")
	if !ok {
		t.Fatal("expected a selection")
	}
	if sel.MinLanded != 15.00 {
		t.Errorf("minimum must span summaries, got %.2f", sel.MinLanded)
	}
	// No live offer at 15.00: the cheapest offer above it is selected.
	if sel.Offer == nil || sel.Offer.SellerID != "A" {
		t.Errorf("expected closest-above fallback to offer A, got %+v", sel.Offer)
	}
}

func TestSelectOffer_LandedIncludesShipping(t *testing.T) {
	p := &spapi.OffersPayload{
		Offers: []spapi.Offer{
			{SubCondition: "new", SellerID: "A", ListingPrice: eur(10.00), Shipping: eur(5.00)},
			{SubCondition: "new", SellerID: "B", ListingPrice: eur(12.00), Shipping: eur(0)},
		},
	}

	sel, ok := SelectOffer(p, "new")
	if !ok {
		t.Fatal("expected a selection")
	}
	if sel.MinLanded != 12.00 {
		t.Errorf("landed price comparison must include shipping, got %.2f", sel.MinLanded)
	}
	if sel.Offer == nil || sel.Offer.SellerID != "B" {
		t.Errorf("expected offer B at the landed minimum, got %+v", sel.Offer)
	}
}

func TestSelectOffer_NoEligibleOffers(t *testing.T) {
	p := &spapi.OffersPayload{
		Offers: []spapi.Offer{
			{SubCondition: "used", ListingPrice: eur(9.99)},
		},
	}
	if _, ok := SelectOffer(p, "new"); ok {
		t.Error("no eligible condition must yield no selection")
	}
	if _, ok := SelectOffer(nil, "new"); ok {
		t.Error("nil payload must yield no selection")
	}
}

func TestSelectOffer_SummaryOnlyStillReportsMinimum(t *testing.T) {
	p := &spapi.OffersPayload{
		Summary: spapi.OfferSummary{
			LowestPrices: []spapi.PriceEntry{
				{Condition: "new", LandedPrice: eur(22.00)},
			},
		},
	}
	sel, ok := SelectOffer(p, "new")
	if !ok {
		t.Fatal("summary-only payload must still yield a price")
	}
	if sel.MinLanded != 22.00 || sel.Offer != nil {
		t.Errorf("got min %.2f offer %+v, want 22.00 and nil offer", sel.MinLanded, sel.Offer)
	}
}
