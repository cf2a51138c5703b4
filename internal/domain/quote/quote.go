package quote

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shipfunnel/backend/internal/domain/shared"
)

// CashContentType marks a shipment whose content is cash
const CashContentType = "Dinero en efectivo"

// DateLayout is the delivery date format
const DateLayout = "2006-01-02"

// PaymentMethod is how the customer pays for the shipment
type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentAgency PaymentMethod = "agency"
)

// IsValid reports whether m is a known payment method
func (m PaymentMethod) IsValid() bool {
	return m == PaymentOnline || m == PaymentAgency
}

// Input is a quote request
type Input struct {
	WeightLbs            decimal.Decimal `json:"weightLbs"`
	CashAmount           decimal.Decimal `json:"cashAmount"`
	Pickup               bool            `json:"pickup"`
	PickupAddressPlaceID string          `json:"pickupAddressPlaceId,omitempty"`
	PickupAddress        string          `json:"pickupAddress,omitempty"`
	ContentType          string          `json:"contentType"`
	PaymentMethod        string          `json:"paymentMethod"`
	DeliveryDate         string          `json:"deliveryDate"`
	CityCuba             string          `json:"cityCuba"`
}

// IsCash reports whether the shipment content is cash
func (in Input) IsCash() bool {
	return in.ContentType == CashContentType
}

// PickupDestination returns the distance lookup destination for a pickup.
// A resolved place id takes precedence over a typed address.
func (in Input) PickupDestination() string {
	if id := strings.TrimSpace(in.PickupAddressPlaceID); id != "" {
		return "place_id:" + id
	}
	return strings.TrimSpace(in.PickupAddress)
}

// Pricing holds the rates used to price a quote
type Pricing struct {
	PricePerLb       decimal.Decimal
	MinCashAmount    decimal.Decimal
	CashRateOnline   decimal.Decimal
	CashRateAgency   decimal.Decimal
	PickupBaseFee    decimal.Decimal
	PickupPerMile    decimal.Decimal
	PlatformRate     decimal.Decimal
	StripePercent    decimal.Decimal
	StripeFixed      decimal.Decimal
	MinAddressLength int
}

// CashRate returns the cash handling rate for a payment method
func (p Pricing) CashRate(method PaymentMethod) decimal.Decimal {
	if method == PaymentAgency {
		return p.CashRateAgency
	}
	return p.CashRateOnline
}

// Breakdown itemizes a quote total
type Breakdown struct {
	Weight        decimal.Decimal `json:"weight"`
	Pickup        decimal.Decimal `json:"pickup"`
	CashFee       decimal.Decimal `json:"cashFee"`
	ProcessingFee decimal.Decimal `json:"processingFee"`
}

// Policy carries constraints the caller must enforce when charging
type Policy struct {
	MustPayOnlineForCash bool `json:"mustPayOnlineForCash"`
}

// Quote is the priced result of a request
type Quote struct {
	Input         Input           `json:"input"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Breakdown     Breakdown       `json:"breakdown"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DistanceMiles decimal.Decimal `json:"distanceMiles"`
	Policy        Policy          `json:"policy"`
	Total         decimal.Decimal `json:"total"`
}

// TotalCents returns the total in cents
func (q *Quote) TotalCents() int64 {
	return q.Total.Shift(2).Round(0).IntPart()
}

// Validate checks in against p and returns the effective payment method.
// today is any instant of the current day in the shipper's time zone.
func Validate(in Input, p Pricing, today time.Time) (PaymentMethod, error) {
	if in.IsCash() {
		if in.CashAmount.LessThan(p.MinCashAmount) {
			return "", shared.NewValidationError("cash amount must be at least $%s", p.MinCashAmount.StringFixed(2)).
				WithDetails(map[string]any{"field": "cashAmount", "min": p.MinCashAmount.InexactFloat64()})
		}
	} else if !in.WeightLbs.IsPositive() {
		return "", shared.NewValidationError("weight must be greater than zero").
			WithDetails(map[string]any{"field": "weightLbs"})
	}

	if strings.TrimSpace(in.CityCuba) == "" {
		return "", shared.NewValidationError("destination city is required").
			WithDetails(map[string]any{"field": "cityCuba"})
	}

	if err := validateDeliveryDate(in.DeliveryDate, today); err != nil {
		return "", err
	}

	method := PaymentMethod(strings.ToLower(strings.TrimSpace(in.PaymentMethod)))
	switch {
	case method.IsValid():
	case method == "" && in.IsCash():
	default:
		return "", shared.NewValidationError("payment method must be one of online, agency").
			WithDetails(map[string]any{"field": "paymentMethod", "value": in.PaymentMethod})
	}
	if in.IsCash() {
		method = PaymentOnline
	}

	if in.Pickup && strings.TrimSpace(in.PickupAddressPlaceID) == "" &&
		len(strings.TrimSpace(in.PickupAddress)) < p.MinAddressLength {
		return "", shared.NewValidationError("pickup requires a selected place or an address of at least %d characters", p.MinAddressLength).
			WithDetails(map[string]any{"field": "pickupAddress"})
	}

	return method, nil
}

func validateDeliveryDate(value string, today time.Time) error {
	loc := today.Location()
	date, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return shared.NewValidationError("delivery date must use the YYYY-MM-DD format").
			WithDetails(map[string]any{"field": "deliveryDate", "value": value})
	}
	y, m, d := today.Date()
	tomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	if date.Before(tomorrow) {
		return shared.NewValidationError("delivery date must be %s or later", tomorrow.Format(DateLayout)).
			WithDetails(map[string]any{"field": "deliveryDate", "value": value})
	}
	return nil
}

// Price computes the quote for a validated input. miles is the pickup
// distance and is ignored when no pickup was requested.
func Price(in Input, method PaymentMethod, miles decimal.Decimal, p Pricing) *Quote {
	q := &Quote{Input: in, PaymentMethod: method}

	if in.IsCash() {
		q.Breakdown.Weight = cents(in.CashAmount)
		q.Breakdown.CashFee = cents(p.CashRate(method).Mul(q.Breakdown.Weight))
		q.Policy.MustPayOnlineForCash = true
	} else {
		q.Breakdown.Weight = cents(in.WeightLbs.Mul(p.PricePerLb))
	}

	if in.Pickup {
		q.DistanceMiles = cents(miles)
		q.Breakdown.Pickup = cents(p.PickupBaseFee.Add(p.PickupPerMile.Mul(miles)))
	}

	q.Subtotal = q.Breakdown.Weight.Add(q.Breakdown.Pickup).Add(q.Breakdown.CashFee)

	if method == PaymentOnline {
		platform := cents(q.Subtotal.Mul(p.PlatformRate))
		processor := cents(q.Subtotal.Mul(p.StripePercent).Add(p.StripeFixed))
		q.Breakdown.ProcessingFee = platform.Add(processor)
	}

	q.Total = q.Subtotal.Add(q.Breakdown.ProcessingFee)
	return q
}

// cents rounds half away from zero to two decimal places
func cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
