package quote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/quote"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/config"
)

const distanceKeyPrefix = "distance:"

// Calculator prices quote requests, resolving pickup distances through a cached lookup
type Calculator struct {
	pricing  quote.Pricing
	origin   string
	location *time.Location
	distance quote.DistanceLookup
	cache    shared.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewCalculator creates a new Calculator
func NewCalculator(
	cfg config.QuoteConfig,
	fees config.FeeConfig,
	distance quote.DistanceLookup,
	cache shared.Cache,
	logger *zap.Logger,
) (*Calculator, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("quote: invalid time zone %q: %w", cfg.TimeZone, err)
	}
	return &Calculator{
		pricing:  PricingFromConfig(cfg, fees),
		origin:   cfg.AgencyOrigin,
		location: loc,
		distance: distance,
		cache:    cache,
		cacheTTL: cfg.DistanceCacheTTL,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// PricingFromConfig converts configured rates into exact decimals
func PricingFromConfig(cfg config.QuoteConfig, fees config.FeeConfig) quote.Pricing {
	return quote.Pricing{
		PricePerLb:       decimal.NewFromFloat(cfg.PricePerLb),
		MinCashAmount:    decimal.NewFromFloat(cfg.MinCashAmount),
		CashRateOnline:   decimal.NewFromFloat(cfg.CashRateOnline),
		CashRateAgency:   decimal.NewFromFloat(cfg.CashRateAgency),
		PickupBaseFee:    decimal.NewFromFloat(cfg.PickupBaseFee),
		PickupPerMile:    decimal.NewFromFloat(cfg.PickupPerMile),
		PlatformRate:     decimal.NewFromFloat(fees.PlatformRate),
		StripePercent:    decimal.NewFromFloat(fees.StripePercent),
		StripeFixed:      decimal.NewFromFloat(fees.StripeFixed),
		MinAddressLength: cfg.MinAddressLength,
	}
}

// Calculate validates in and prices it
func (c *Calculator) Calculate(ctx context.Context, in quote.Input) (*quote.Quote, error) {
	method, err := quote.Validate(in, c.pricing, c.now().In(c.location))
	if err != nil {
		return nil, err
	}
	return c.price(ctx, in, method)
}

// Reprice prices a previously accepted input again without re-running the
// request validation. The delivery date of a stored order is usually in the past.
func (c *Calculator) Reprice(ctx context.Context, in quote.Input) (*quote.Quote, error) {
	method := quote.PaymentMethod(strings.ToLower(strings.TrimSpace(in.PaymentMethod)))
	if in.IsCash() || !method.IsValid() {
		method = quote.PaymentOnline
	}
	return c.price(ctx, in, method)
}

func (c *Calculator) price(ctx context.Context, in quote.Input, method quote.PaymentMethod) (*quote.Quote, error) {
	miles := decimal.Zero
	if in.Pickup {
		var err error
		miles, err = c.pickupMiles(ctx, in.PickupDestination())
		if err != nil {
			return nil, err
		}
	}
	return quote.Price(in, method, miles, c.pricing), nil
}

// pickupMiles resolves the agency-to-pickup distance. Cache failures degrade to a direct lookup.
func (c *Calculator) pickupMiles(ctx context.Context, destination string) (decimal.Decimal, error) {
	key := distanceKeyPrefix + c.origin + "|" + destination

	var cached string
	found, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.logger.Warn("Distance cache read failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		if miles, err := decimal.NewFromString(cached); err == nil {
			return miles, nil
		}
	}

	miles, err := c.distance.Miles(ctx, c.origin, destination)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.cache.Set(ctx, key, miles.String(), c.cacheTTL); err != nil {
		c.logger.Warn("Distance cache write failed", zap.String("key", key), zap.Error(err))
	}
	return miles, nil
}
