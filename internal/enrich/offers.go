package enrich

import (
	"math"
	"strings"

	"github.com/scriptify-labs/worker-cli/pkg/spapi"
)

// priceTolerance is the absolute slack when matching an offer's landed
// price against the summarized minimum. Summaries and live offers are
// computed at slightly different times, so exact equality is too strict.
const priceTolerance = 0.01

// OfferSelection is the outcome of picking a representative offer for an
// item: the minimum landed price across all sources and, when one exists,
// the live offer that carries it.
type OfferSelection struct {
	MinLanded float64
	Currency  string
	Offer     *spapi.Offer
}

// SelectOffer reduces an offer listing to one price and one offer. The
// minimum landed price is taken across the lowest-price summaries, the
// buy-box summaries, and the live offers, restricted to the given
// condition. Among live offers within tolerance of that minimum the
// buy-box winner wins; with no offer at the minimum, the cheapest offer
// above it is used instead.
func SelectOffer(p *spapi.OffersPayload, condition string) (OfferSelection, bool) {
	if p == nil {
		return OfferSelection{}, false
	}
	cond := strings.ToLower(condition)

	min := math.Inf(1)
	currency := ""
	consider := func(amount float64, cc string) {
		if amount > 0 && amount < min {
			min = amount
			if cc != "" {
				currency = cc
			}
		}
	}

	for _, e := range p.Summary.LowestPrices {
		if strings.ToLower(e.Condition) == cond {
			consider(e.Landed(), e.LandedPrice.CurrencyCode)
		}
	}
	for _, e := range p.Summary.BuyBoxPrices {
		if strings.ToLower(e.Condition) == cond {
			consider(e.Landed(), e.LandedPrice.CurrencyCode)
		}
	}

	var eligible []spapi.Offer
	for _, o := range p.Offers {
		if strings.ToLower(o.SubCondition) != cond {
			continue
		}
		eligible = append(eligible, o)
		consider(o.LandedPrice(), o.ListingPrice.CurrencyCode)
	}

	if math.IsInf(min, 1) {
		return OfferSelection{}, false
	}
	sel := OfferSelection{MinLanded: min, Currency: currency}

	// Pass 1: offers at the minimum, buy-box winner preferred.
	var atMin *spapi.Offer
	for i := range eligible {
		o := &eligible[i]
		if math.Abs(o.LandedPrice()-min) > priceTolerance {
			continue
		}
		if atMin == nil || (o.IsBuyBoxWinner && !atMin.IsBuyBoxWinner) {
			atMin = o
		}
	}
	if atMin != nil {
		sel.Offer = atMin
		return sel, true
	}

	// Pass 2: no live offer carries the summarized minimum (it may have
	// just sold out). Fall back to the cheapest offer above it.
	var above *spapi.Offer
	for i := range eligible {
		o := &eligible[i]
		if o.LandedPrice() <= min {
			continue
		}
		if above == nil || o.LandedPrice() < above.LandedPrice() {
			above = o
		}
	}
	sel.Offer = above
	return sel, true
}
