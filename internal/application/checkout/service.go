// Package checkout starts the payment step of the funnel: it prices the order,
// stores the client record and opens a hosted checkout session for the total.
package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/quote"
	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
)

// PaymentStatusPending is stored until the provider confirms the payment
const PaymentStatusPending = "pending"

// Quoter prices a quote request
type Quoter interface {
	Calculate(ctx context.Context, in quote.Input) (*quote.Quote, error)
}

// Request is a customer's checkout
type Request struct {
	Name               string
	Email              string
	DestinationAccount string
	Quote              quote.Input
}

// Result is an opened checkout
type Result struct {
	ClientID  string
	SessionID string
	URL       string
	Quote     *quote.Quote
}

// Service opens checkout sessions
type Service struct {
	gateway  settlement.PaymentGateway
	store    settlement.ClientRecordStore
	quoter   Quoter
	fees     settlement.FeeSchedule
	currency string
	logger   *zap.Logger
	newID    func() string
}

// NewService creates a new checkout Service
func NewService(
	gateway settlement.PaymentGateway,
	store settlement.ClientRecordStore,
	quoter Quoter,
	fees settlement.FeeSchedule,
	currency string,
	log *zap.Logger,
) *Service {
	return &Service{
		gateway:  gateway,
		store:    store,
		quoter:   quoter,
		fees:     fees,
		currency: currency,
		logger:   log,
		newID:    uuid.NewString,
	}
}

// Start quotes the order, persists the client record and creates a checkout
// session tagged with the client id. The record is written before the session
// so a webhook for the session always finds it.
func (s *Service) Start(ctx context.Context, req Request) (*Result, error) {
	if req.DestinationAccount != "" && !settlement.ValidDestination(req.DestinationAccount) {
		return nil, shared.NewValidationError("destination account must start with %s", settlement.DestinationPrefix).
			WithDetails(map[string]any{"field": "destinationAccount"})
	}

	q, err := s.quoter.Calculate(ctx, req.Quote)
	if err != nil {
		return nil, err
	}

	amount := q.TotalCents()
	if amount <= 0 {
		return nil, shared.NewValidationError("quote total must be positive")
	}

	in := q.Input
	record := &settlement.ClientRecord{
		ID:                     s.newID(),
		Name:                   strings.TrimSpace(req.Name),
		Email:                  strings.TrimSpace(req.Email),
		PaymentMethod:          q.PaymentMethod,
		AmountCents:            amount,
		Currency:               s.currency,
		PaymentStatus:          PaymentStatusPending,
		DestinationAccount:     req.DestinationAccount,
		DestinationAmountCents: settlement.ComputeSplit(amount, s.fees).DestinationCents,
		QuoteInput:             &in,
	}
	log := logger.FromContextOr(ctx, s.logger).With(zap.String("client_id", record.ID))

	if err := s.store.Create(ctx, record); err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, settlement.CheckoutRequest{
		ClientID:      record.ID,
		AmountCents:   amount,
		Currency:      s.currency,
		Description:   checkoutDescription(q),
		CustomerEmail: record.Email,
	})
	if err != nil {
		log.Error("Checkout session creation failed", zap.Error(err))
		return nil, err
	}

	if err := s.store.Update(ctx, record.ID, settlement.ClientPatch{SessionID: &session.ID}); err != nil {
		log.Error("Checkout session created but not recorded",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return nil, shared.NewInternalError("checkout session %s was created but could not be recorded", session.ID)
	}

	log.Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.Int64("amount_cents", amount),
		zap.String("payment_method", string(q.PaymentMethod)),
	)
	return &Result{
		ClientID:  record.ID,
		SessionID: session.ID,
		URL:       session.URL,
		Quote:     q,
	}, nil
}

func checkoutDescription(q *quote.Quote) string {
	kind := "Package"
	if q.Input.IsCash() {
		kind = "Cash remittance"
	}
	return kind + " to " + q.Input.CityCuba + " (" + deliveryLabel(q.Input.DeliveryDate) + ")"
}

func deliveryLabel(date string) string {
	t, err := time.Parse(quote.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("Jan 2, 2006")
}
