package quote

import (
	"context"

	"github.com/shopspring/decimal"
)

// DistanceLookup resolves the driving distance in miles between two places.
// destination may be a free-form address or a "place_id:<id>" reference.
type DistanceLookup interface {
	Miles(ctx context.Context, origin, destination string) (decimal.Decimal, error)
}
