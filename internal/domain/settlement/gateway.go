package settlement

import (
	"context"
	"time"
)

// ChargeState is the provider's authoritative view of a payment
type ChargeState struct {
	SessionID       string
	PaymentIntentID string
	ChargeID        string
	Paid            bool
	Status          string
	AmountCents     int64
	Currency        string
	CustomerEmail   string
	CustomerName    string
	ClientID        string
}

// TransferRequest moves funds to a connected account
type TransferRequest struct {
	DestinationAccount string
	AmountCents        int64
	Currency           string
	SourceTransaction  string
	IdempotencyKey     string
	Metadata           map[string]string
}

// Transfer is a created provider transfer
type Transfer struct {
	ID      string
	Created time.Time
}

// CheckoutRequest opens a hosted payment page for an order
type CheckoutRequest struct {
	ClientID      string
	AmountCents   int64
	Currency      string
	Description   string
	CustomerEmail string
}

// CheckoutSession is a created hosted payment page
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentGateway is the payment provider used for verification, checkout and payouts
type PaymentGateway interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*ChargeState, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*ChargeState, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}
