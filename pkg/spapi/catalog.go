package spapi

// Title returns the item name from the summary for the given marketplace,
// falling back to the first summary carrying a name.
func (c *CatalogItem) Title(marketplaceID string) string {
	for _, s := range c.Summaries {
		if s.MarketplaceID == marketplaceID && s.ItemName != "" {
			return s.ItemName
		}
	}
	for _, s := range c.Summaries {
		if s.ItemName != "" {
			return s.ItemName
		}
	}
	return ""
}

// BestImages returns one link per image variant for the given marketplace,
// picking the highest-resolution rendition of each variant. Order follows
// first appearance of each variant so the MAIN image stays first.
func (c *CatalogItem) BestImages(marketplaceID string) []string {
	var set *ItemImageSet
	for i := range c.Images {
		if c.Images[i].MarketplaceID == marketplaceID {
			set = &c.Images[i]
			break
		}
	}
	if set == nil && len(c.Images) > 0 {
		set = &c.Images[0]
	}
	if set == nil {
		return nil
	}

	best := make(map[string]ItemImage)
	var order []string
	for _, img := range set.Images {
		if img.Link == "" {
			continue
		}
		cur, ok := best[img.Variant]
		if !ok {
			best[img.Variant] = img
			order = append(order, img.Variant)
			continue
		}
		if img.Height*img.Width > cur.Height*cur.Width {
			best[img.Variant] = img
		}
	}

	out := make([]string, 0, len(order))
	for _, v := range order {
		out = append(out, best[v].Link)
	}
	return out
}
