package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the timestamp format used by the flat-file stores.
const TimeLayout = "2006-01-02 15:04:05"

// Sample is a single observation of the spot price. Price is invalid when the
// fetch for that tick failed.
type Sample struct {
	Time  time.Time
	Price decimal.NullDecimal
}

// NewSample builds a sample with a known price.
func NewSample(at time.Time, price decimal.Decimal) Sample {
	return Sample{Time: at, Price: decimal.NewNullDecimal(price)}
}

// HasPrice reports whether the sample carries a price.
func (s Sample) HasPrice() bool {
	return s.Price.Valid
}

// AthRecord captures a newly observed all-time-high.
type AthRecord struct {
	Time  time.Time
	Price decimal.Decimal
}

// LatestPrice returns the most recent sample's price, if it has one.
func LatestPrice(samples []Sample) (decimal.Decimal, bool) {
	if len(samples) == 0 {
		return decimal.Decimal{}, false
	}
	last := samples[len(samples)-1]
	if !last.HasPrice() {
		return decimal.Decimal{}, false
	}
	return last.Price.Decimal, true
}
