package settlement

import "github.com/shopspring/decimal"

// FeeSchedule holds processor and platform fee parameters
type FeeSchedule struct {
	StripePercent    decimal.Decimal
	StripeFixed      decimal.Decimal // dollars
	PlatformRate     decimal.Decimal
	PlatformMinCents int64
}

// NewFeeSchedule builds a FeeSchedule from configuration values
func NewFeeSchedule(stripePercent, stripeFixed, platformRate float64, platformMinCents int64) FeeSchedule {
	return FeeSchedule{
		StripePercent:    decimal.NewFromFloat(stripePercent),
		StripeFixed:      decimal.NewFromFloat(stripeFixed),
		PlatformRate:     decimal.NewFromFloat(platformRate),
		PlatformMinCents: platformMinCents,
	}
}

// Split divides a charge between processor, platform and destination
type Split struct {
	AmountCents      int64 `json:"amountCents"`
	StripeFeeCents   int64 `json:"stripeFeeCents"`
	PlatformFeeCents int64 `json:"platformFeeCents"`
	DestinationCents int64 `json:"destinationCents"`
}

// ComputeSplit applies the fee schedule to a charge amount.
//
//	stripeFee   = round(amount*percent) + round(fixed*100)
//	platformFee = max(min, round((amount-stripeFee)*rate))
//	destination = amount - stripeFee - platformFee
func ComputeSplit(amountCents int64, fees FeeSchedule) Split {
	amount := decimal.NewFromInt(amountCents)

	stripeFee := amount.Mul(fees.StripePercent).Round(0).IntPart() +
		fees.StripeFixed.Shift(2).Round(0).IntPart()

	platformFee := amount.Sub(decimal.NewFromInt(stripeFee)).Mul(fees.PlatformRate).Round(0).IntPart()
	if platformFee < fees.PlatformMinCents {
		platformFee = fees.PlatformMinCents
	}

	return Split{
		AmountCents:      amountCents,
		StripeFeeCents:   stripeFee,
		PlatformFeeCents: platformFee,
		DestinationCents: amountCents - stripeFee - platformFee,
	}
}
