package spapi

// Money is an amount in a currency as the pricing endpoint reports it.
type Money struct {
	CurrencyCode string  `json:"CurrencyCode"`
	Amount       float64 `json:"Amount"`
}

// CatalogItem is the catalog-items response for one ASIN, restricted to
// the summaries and images datasets.
type CatalogItem struct {
	ASIN      string         `json:"asin"`
	Summaries []ItemSummary  `json:"summaries"`
	Images    []ItemImageSet `json:"images"`
}

// ItemSummary is one per-marketplace summary of a catalog item.
type ItemSummary struct {
	MarketplaceID string `json:"marketplaceId"`
	ItemName      string `json:"itemName"`
	Brand         string `json:"brand"`
	ModelNumber   string `json:"modelNumber"`
}

// ItemImageSet groups the image variants of one marketplace.
type ItemImageSet struct {
	MarketplaceID string      `json:"marketplaceId"`
	Images        []ItemImage `json:"images"`
}

// ItemImage is one rendition of a catalog image. The catalog serves each
// logical photo in several resolutions under the same variant code.
type ItemImage struct {
	Variant string `json:"variant"`
	Link    string `json:"link"`
	Height  int    `json:"height"`
	Width   int    `json:"width"`
}

type offersResponse struct {
	Payload OffersPayload `json:"payload"`
}

// OffersPayload is the product-pricing response for one ASIN.
type OffersPayload struct {
	ASIN    string       `json:"ASIN"`
	Status  string       `json:"status"`
	Summary OfferSummary `json:"Summary"`
	Offers  []Offer      `json:"Offers"`
}

// OfferSummary aggregates the offer listing: total count plus the lowest
// and buy-box landed prices per condition and fulfillment channel.
type OfferSummary struct {
	TotalOfferCount int          `json:"TotalOfferCount"`
	LowestPrices    []PriceEntry `json:"LowestPrices"`
	BuyBoxPrices    []PriceEntry `json:"BuyBoxPrices"`
}

// PriceEntry is one summarized price point.
type PriceEntry struct {
	Condition    string `json:"condition"`
	LandedPrice  Money  `json:"LandedPrice"`
	ListingPrice Money  `json:"ListingPrice"`
	Shipping     Money  `json:"Shipping"`
}

// Offer is one live offer from the listing.
type Offer struct {
	SellerID       string `json:"SellerId"`
	SubCondition   string `json:"SubCondition"`
	ListingPrice   Money  `json:"ListingPrice"`
	Shipping       Money  `json:"Shipping"`
	IsBuyBoxWinner bool   `json:"IsBuyBoxWinner"`
	IsFulfilledBy  bool   `json:"IsFulfilledByAmazon"`
}

// LandedPrice is the offer's listing price plus shipping.
func (o Offer) LandedPrice() float64 {
	return o.ListingPrice.Amount + o.Shipping.Amount
}

// Landed returns the entry's landed price, deriving it from listing plus
// shipping when the summary omits the precomputed field.
func (p PriceEntry) Landed() float64 {
	if p.LandedPrice.Amount > 0 {
		return p.LandedPrice.Amount
	}
	return p.ListingPrice.Amount + p.Shipping.Amount
}
