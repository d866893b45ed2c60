package services

import (
	"context"

	"github.com/shopspring/decimal"
)

// RatesService is the consumed price oracle. Prices maps asset codes to rates
// relative to a reference unit; the values are informational estimates only
// and never used for exact balance arithmetic.
type RatesService interface {
	Prices(ctx context.Context) (map[string]decimal.Decimal, error)
}
