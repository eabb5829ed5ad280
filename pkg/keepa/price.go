package keepa

import (
	"time"
)

// Price-history series indices in the CSV arrays.
const (
	SeriesAmazon = 0
	SeriesNew    = 1
	SeriesUsed   = 2
)

// keepaEpoch is 2011-01-01 00:00:00 UTC; Keepa timestamps count minutes
// from it.
const keepaEpoch = 1293840000

// TimeToUTC converts a Keepa minute timestamp to UTC.
func TimeToUTC(minutesSince2011 int64) time.Time {
	return time.Unix(keepaEpoch+minutesSince2011*60, 0).UTC()
}

// LatestPrice walks one price-history series backwards and returns the
// most recent valid price in whole currency units (Keepa stores cents)
// with its timestamp. A price of -1 marks "no offer" and is skipped.
func LatestPrice(csv [][]int64, series int) (float64, time.Time, bool) {
	if series < 0 || series >= len(csv) {
		return 0, time.Time{}, false
	}
	arr := csv[series]
	if len(arr) < 2 {
		return 0, time.Time{}, false
	}

	// Entries are (timestamp, price) pairs; newest last.
	for i := len(arr) - 1; i > 0; i -= 2 {
		price := arr[i]
		ts := arr[i-1]
		if price > 0 {
			return float64(price) / 100, TimeToUTC(ts), true
		}
	}
	return 0, time.Time{}, false
}

// LatestPriceAny tries the given series in order and returns the first
// series that yields a valid latest price.
func LatestPriceAny(csv [][]int64, series ...int) (float64, time.Time, bool) {
	for _, s := range series {
		if price, ts, ok := LatestPrice(csv, s); ok {
			return price, ts, true
		}
	}
	return 0, time.Time{}, false
}
