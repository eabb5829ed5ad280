// Package export renders run results into files for human consumption:
// spreadsheets for the purchasing side, CSV for downstream scripts.
package export

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/scriptify-labs/worker-cli/internal/model"
)

// prices are shown the way the buyers read them
var pricePrinter = message.NewPrinter(language.German)

// FormatPrice renders an amount with a currency code in German number
// formatting.
func FormatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = "EUR"
	}
	return pricePrinter.Sprintf("%.2f %s", amount, currency)
}

var listingHeader = []string{"#", "Title", "Price", "Listed", "Link", "Description", "Images"}

// ScrapeXLSX writes a scrape result as a workbook with one sheet per
// city.
func ScrapeXLSX(result *model.ScrapeResult, path string) error {
	file := xlsx.NewFile()

	for _, city := range sortedCities(result) {
		sheet, err := file.AddSheet(city)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", city)
		}

		header := sheet.AddRow()
		for _, h := range listingHeader {
			header.AddCell().SetString(h)
		}

		for _, l := range result.Cities[city] {
			row := sheet.AddRow()
			row.AddCell().SetInt(l.DisplayID)
			row.AddCell().SetString(l.Title)
			row.AddCell().SetString(listingPrice(l))
			row.AddCell().SetString(listedAt(l))
			row.AddCell().SetString(l.Link)
			row.AddCell().SetString(l.Description)
			row.AddCell().SetString(strings.Join(l.ImageURLs, "\n"))
		}
	}

	return eris.Wrapf(file.Save(path), "export: save %s", path)
}

// ScrapeCSV writes a scrape result as a flat CSV with a city column.
func ScrapeCSV(result *model.ScrapeResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"City"}, listingHeader...)); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for _, city := range sortedCities(result) {
		for _, l := range result.Cities[city] {
			record := []string{
				city,
				strconv.Itoa(l.DisplayID),
				l.Title,
				listingPrice(l),
				listedAt(l),
				l.Link,
				l.Description,
				strings.Join(l.ImageURLs, " "),
			}
			if err := w.Write(record); err != nil {
				return eris.Wrap(err, "export: write record")
			}
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "export: flush")
}

var analysisHeader = []string{
	"#", "Item", "Identified As", "Market Price", "Lowest Offer", "Offer Count", "Product Link", "Degraded",
}

// AnalysisXLSX writes an analysis result as a single-sheet workbook.
func AnalysisXLSX(result *model.AnalyzeResult, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Analysis")
	if err != nil {
		return eris.Wrap(err, "export: add analysis sheet")
	}

	header := sheet.AddRow()
	for _, h := range analysisHeader {
		header.AddCell().SetString(h)
	}

	for i, item := range result.Items {
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetString(itemLabel(item))
		row.AddCell().SetString(identifiedAs(item))

		if item.Match != nil && item.Match.Price > 0 {
			row.AddCell().SetString(FormatPrice(item.Match.Price, item.Match.Currency))
		} else {
			row.AddCell().SetString("")
		}
		if item.Pricing != nil {
			row.AddCell().SetString(FormatPrice(item.Pricing.MinPrice, item.Pricing.Currency))
			row.AddCell().SetInt(item.Pricing.OfferCount)
		} else {
			row.AddCell().SetString("")
			row.AddCell().SetString("")
		}
		if item.Match != nil {
			row.AddCell().SetString(item.Match.URL)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(strings.Join(item.Degraded, "; "))
	}

	totals := sheet.AddRow()
	totals.AddCell().SetString("Total")
	totals.AddCell().SetString("")
	totals.AddCell().SetString("")
	totals.AddCell().SetString(FormatPrice(result.TotalPrice, result.Currency))

	return eris.Wrapf(file.Save(path), "export: save %s", path)
}

func sortedCities(result *model.ScrapeResult) []string {
	cities := make([]string, 0, len(result.Cities))
	for city := range result.Cities {
		cities = append(cities, city)
	}
	sort.Strings(cities)
	return cities
}

func listingPrice(l model.Listing) string {
	if l.Price == "" {
		return ""
	}
	if amount, err := strconv.ParseFloat(l.Price, 64); err == nil {
		return FormatPrice(amount, l.Currency)
	}
	return l.Price
}

func listedAt(l model.Listing) string {
	if l.ListedAt == nil {
		return ""
	}
	return l.ListedAt.Format(time.DateOnly)
}

func itemLabel(item model.EnrichedItem) string {
	if item.Item.Title != "" {
		return item.Item.Title
	}
	return item.Item.Key
}

func identifiedAs(item model.EnrichedItem) string {
	var names []string
	for _, p := range item.Products {
		name := p.Title
		if p.Quantity > 1 {
			name += " x" + strconv.Itoa(p.Quantity)
		}
		names = append(names, name)
	}
	return strings.Join(names, "; ")
}
