package fetcher

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps every failure to obtain a price: transport errors,
// unexpected status codes and malformed bodies alike.
var ErrUnavailable = errors.New("price unavailable")

// PriceFetcher retrieves the current spot price of the tracked asset.
type PriceFetcher interface {
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
}

// Static always returns the same price. Used to simulate a tick.
type Static struct {
	Price decimal.Decimal
}

// FetchPrice returns the configured price.
func (s Static) FetchPrice(context.Context) (decimal.Decimal, error) {
	return s.Price, nil
}

var _ PriceFetcher = Static{}
