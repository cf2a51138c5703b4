package billing

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
)

// metadataClientID links provider objects back to a client record
const metadataClientID = "client_id"

// StripeAdapter implements settlement.PaymentGateway on the Stripe API
type StripeAdapter struct {
	config *StripeConfig
	api    *client.API
	logger *zap.Logger
}

var _ settlement.PaymentGateway = (*StripeAdapter)(nil)

// NewStripeAdapter creates a new Stripe adapter. backends may be nil to use
// the default HTTP backends.
func NewStripeAdapter(config *StripeConfig, backends *stripe.Backends, logger *zap.Logger) (*StripeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	api := &client.API{}
	api.Init(config.SecretKey, backends)

	return &StripeAdapter{
		config: config,
		api:    api,
		logger: logger.Named("stripe"),
	}, nil
}

// GetCheckoutSession retrieves a checkout session with its payment intent expanded
func (a *StripeAdapter) GetCheckoutSession(ctx context.Context, sessionID string) (*settlement.ChargeState, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("payment_intent")

	s, err := a.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, a.mapError("get checkout session", err, zap.String("session_id", sessionID))
	}

	state := &settlement.ChargeState{
		SessionID:   s.ID,
		Paid:        s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Status:      string(s.PaymentStatus),
		AmountCents: s.AmountTotal,
		Currency:    string(s.Currency),
		ClientID:    s.ClientReferenceID,
	}
	if state.ClientID == "" {
		state.ClientID = s.Metadata[metadataClientID]
	}
	if s.CustomerDetails != nil {
		state.CustomerEmail = s.CustomerDetails.Email
		state.CustomerName = s.CustomerDetails.Name
	}
	if pi := s.PaymentIntent; pi != nil {
		state.PaymentIntentID = pi.ID
		if pi.LatestCharge != nil {
			state.ChargeID = pi.LatestCharge.ID
		}
	}
	return state, nil
}

// GetPaymentIntent retrieves a payment intent
func (a *StripeAdapter) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*settlement.ChargeState, error) {
	params := &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}}

	pi, err := a.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, a.mapError("get payment intent", err, zap.String("payment_intent_id", paymentIntentID))
	}

	state := &settlement.ChargeState{
		PaymentIntentID: pi.ID,
		Paid:            pi.Status == stripe.PaymentIntentStatusSucceeded,
		Status:          string(pi.Status),
		AmountCents:     pi.AmountReceived,
		Currency:        string(pi.Currency),
		CustomerEmail:   pi.ReceiptEmail,
		ClientID:        pi.Metadata[metadataClientID],
	}
	if state.AmountCents == 0 {
		state.AmountCents = pi.Amount
	}
	if pi.LatestCharge != nil {
		state.ChargeID = pi.LatestCharge.ID
	}
	return state, nil
}

// CreateTransfer creates a transfer to a connected account. Repeated calls with
// the same idempotency key return the original transfer.
func (a *StripeAdapter) CreateTransfer(ctx context.Context, req settlement.TransferRequest) (*settlement.Transfer, error) {
	currency := req.Currency
	if currency == "" {
		currency = a.config.Currency
	}

	params := &stripe.TransferParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(req.DestinationAccount),
	}
	if req.SourceTransaction != "" {
		params.SourceTransaction = stripe.String(req.SourceTransaction)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	tr, err := a.api.Transfers.New(params)
	if err != nil {
		return nil, a.mapError("create transfer", err,
			zap.String("destination", req.DestinationAccount),
			zap.String("idempotency_key", req.IdempotencyKey))
	}

	a.logger.Info("Created Stripe transfer",
		zap.String("transfer_id", tr.ID),
		zap.String("destination", req.DestinationAccount),
		zap.Int64("amount_cents", req.AmountCents),
		zap.String("idempotency_key", req.IdempotencyKey))

	return &settlement.Transfer{
		ID:      tr.ID,
		Created: time.Unix(tr.Created, 0).UTC(),
	}, nil
}

// CreateCheckoutSession opens a one-line-item payment checkout for an order
func (a *StripeAdapter) CreateCheckoutSession(ctx context.Context, req settlement.CheckoutRequest) (*settlement.CheckoutSession, error) {
	currency := req.Currency
	if currency == "" {
		currency = a.config.Currency
	}

	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(a.config.SuccessURL),
		CancelURL:         stripe.String(a.config.CancelURL),
		ClientReferenceID: stripe.String(req.ClientID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataClientID: req.ClientID},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata(metadataClientID, req.ClientID)

	s, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, a.mapError("create checkout session", err, zap.String("client_id", req.ClientID))
	}

	a.logger.Info("Created Stripe checkout session",
		zap.String("session_id", s.ID),
		zap.String("client_id", req.ClientID),
		zap.Int64("amount_cents", req.AmountCents))

	return &settlement.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// mapError logs a Stripe failure and converts it into a domain error
func (a *StripeAdapter) mapError(op string, err error, fields ...zap.Field) error {
	a.logger.Error("Stripe request failed", append(fields, zap.String("op", op), zap.Error(err))...)

	var se *stripe.Error
	if !errors.As(err, &se) {
		return shared.NewUnavailableError("stripe: %s: provider unreachable", op)
	}

	details := map[string]any{"provider": "stripe", "op": op}
	if se.Code != "" {
		details["code"] = string(se.Code)
	}

	switch {
	case se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == 404:
		return shared.NewNotFoundError("stripe: %s: %s", op, se.Msg).WithDetails(details)
	case se.HTTPStatusCode == 401 || se.HTTPStatusCode == 403:
		return shared.NewUnavailableError("stripe: %s: credentials rejected", op).WithDetails(details)
	default:
		return shared.NewUpstreamError("stripe: %s: %s", op, se.Msg).WithDetails(details)
	}
}
