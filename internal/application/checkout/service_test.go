package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/quote"
	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*settlement.ChargeState, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ChargeState), args.Error(1)
}

func (m *MockGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*settlement.ChargeState, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ChargeState), args.Error(1)
}

func (m *MockGateway) CreateTransfer(ctx context.Context, req settlement.TransferRequest) (*settlement.Transfer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Transfer), args.Error(1)
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req settlement.CheckoutRequest) (*settlement.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.CheckoutSession), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, record *settlement.ClientRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockStore) FindByID(ctx context.Context, id string) (*settlement.ClientRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ClientRecord), args.Error(1)
}

func (m *MockStore) FindBySession(ctx context.Context, sessionID string) (*settlement.ClientRecord, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ClientRecord), args.Error(1)
}

func (m *MockStore) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*settlement.ClientRecord, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ClientRecord), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, id string, patch settlement.ClientPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *MockStore) FindManyPendingSettlement(ctx context.Context, limit int) ([]*settlement.ClientRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*settlement.ClientRecord), args.Error(1)
}

type MockQuoter struct {
	mock.Mock
}

func (m *MockQuoter) Calculate(ctx context.Context, in quote.Input) (*quote.Quote, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quote.Quote), args.Error(1)
}

func weightInput() quote.Input {
	return quote.Input{
		WeightLbs:     decimal.NewFromInt(5),
		ContentType:   "Ropa",
		PaymentMethod: "online",
		DeliveryDate:  "2026-03-20",
		CityCuba:      "Havana",
	}
}

func weightQuote(in quote.Input) *quote.Quote {
	return &quote.Quote{
		Input:         in,
		PaymentMethod: quote.PaymentOnline,
		Total:         decimal.RequireFromString("18.71"),
	}
}

type fixture struct {
	gateway *MockGateway
	store   *MockStore
	quoter  *MockQuoter
	svc     *Service
}

func newFixture() *fixture {
	f := &fixture{gateway: &MockGateway{}, store: &MockStore{}, quoter: &MockQuoter{}}
	f.svc = NewService(f.gateway, f.store, f.quoter, settlement.NewFeeSchedule(0.029, 0.30, 0.023, 110), "usd", zap.NewNop())
	f.svc.newID = func() string { return "c-1" }
	return f
}

func TestService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the record before opening the session", func(t *testing.T) {
		f := newFixture()
		in := weightInput()
		f.quoter.On("Calculate", ctx, in).Return(weightQuote(in), nil)

		var stored *settlement.ClientRecord
		createCall := f.store.On("Create", ctx, mock.AnythingOfType("*settlement.ClientRecord")).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*settlement.ClientRecord) }).
			Return(nil)
		f.gateway.On("CreateCheckoutSession", ctx, settlement.CheckoutRequest{
			ClientID:      "c-1",
			AmountCents:   1871,
			Currency:      "usd",
			Description:   "Package to Havana (Mar 20, 2026)",
			CustomerEmail: "ana@example.com",
		}).Return(&settlement.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil).
			NotBefore(createCall)
		sessionID := "cs_1"
		f.store.On("Update", ctx, "c-1", settlement.ClientPatch{SessionID: &sessionID}).Return(nil)

		res, err := f.svc.Start(ctx, Request{
			Name:               " Ana ",
			Email:              "ana@example.com",
			DestinationAccount: "acct_dest",
			Quote:              in,
		})
		require.NoError(t, err)

		assert.Equal(t, "c-1", res.ClientID)
		assert.Equal(t, "cs_1", res.SessionID)
		assert.Equal(t, "https://checkout.stripe.com/c/cs_1", res.URL)

		require.NotNil(t, stored)
		assert.Equal(t, "Ana", stored.Name)
		assert.Equal(t, int64(1871), stored.AmountCents)
		assert.Equal(t, PaymentStatusPending, stored.PaymentStatus)
		assert.Equal(t, quote.PaymentOnline, stored.PaymentMethod)
		assert.Equal(t, settlement.ComputeSplit(1871, f.svc.fees).DestinationCents, stored.DestinationAmountCents)
		require.NotNil(t, stored.QuoteInput)
		assert.Equal(t, "Havana", stored.QuoteInput.CityCuba)
		f.gateway.AssertExpectations(t)
		f.store.AssertExpectations(t)
	})

	t.Run("rejects a malformed destination before quoting", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.Start(ctx, Request{Name: "Ana", Email: "ana@example.com", DestinationAccount: "ba_123", Quote: weightInput()})
		assert.True(t, shared.IsCode(err, shared.CodeValidation))
		f.quoter.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything)
	})

	t.Run("returns quote validation errors", func(t *testing.T) {
		f := newFixture()
		in := weightInput()
		f.quoter.On("Calculate", ctx, in).Return(nil, shared.NewValidationError("weight must be greater than zero"))

		_, err := f.svc.Start(ctx, Request{Name: "Ana", Email: "ana@example.com", Quote: in})
		assert.True(t, shared.IsCode(err, shared.CodeValidation))
		f.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("propagates provider failures", func(t *testing.T) {
		f := newFixture()
		in := weightInput()
		f.quoter.On("Calculate", ctx, in).Return(weightQuote(in), nil)
		f.store.On("Create", ctx, mock.Anything).Return(nil)
		f.gateway.On("CreateCheckoutSession", ctx, mock.Anything).Return(nil, shared.NewUpstreamError("card declined"))

		_, err := f.svc.Start(ctx, Request{Name: "Ana", Email: "ana@example.com", Quote: in})
		assert.True(t, shared.IsCode(err, shared.CodeUpstream))
		f.store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reports an unrecorded session as internal", func(t *testing.T) {
		f := newFixture()
		in := weightInput()
		f.quoter.On("Calculate", ctx, in).Return(weightQuote(in), nil)
		f.store.On("Create", ctx, mock.Anything).Return(nil)
		f.gateway.On("CreateCheckoutSession", ctx, mock.Anything).Return(&settlement.CheckoutSession{ID: "cs_9"}, nil)
		f.store.On("Update", ctx, "c-1", mock.Anything).Return(errors.New("disk full"))

		_, err := f.svc.Start(ctx, Request{Name: "Ana", Email: "ana@example.com", Quote: in})
		require.Error(t, err)
		assert.True(t, shared.IsCode(err, shared.CodeInternal))
		assert.Contains(t, err.Error(), "cs_9")
	})
}
