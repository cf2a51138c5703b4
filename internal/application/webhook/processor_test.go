package webhook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appsettlement "github.com/shipfunnel/backend/internal/application/settlement"
	"github.com/shipfunnel/backend/internal/domain/notification"
	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/cache"
	"github.com/shipfunnel/backend/internal/infrastructure/jobqueue"
	"github.com/shipfunnel/backend/internal/infrastructure/retry"
)

const testSecret = "whsec_test_secret"

// MockPaymentGateway is a mock implementation of settlement.PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*settlement.ChargeState, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ChargeState), args.Error(1)
}

func (m *MockPaymentGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*settlement.ChargeState, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ChargeState), args.Error(1)
}

func (m *MockPaymentGateway) CreateTransfer(ctx context.Context, req settlement.TransferRequest) (*settlement.Transfer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Transfer), args.Error(1)
}

func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, req settlement.CheckoutRequest) (*settlement.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.CheckoutSession), args.Error(1)
}

// MockClientRecordStore is a mock implementation of settlement.ClientRecordStore
type MockClientRecordStore struct {
	mock.Mock
}

func (m *MockClientRecordStore) Create(ctx context.Context, record *settlement.ClientRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockClientRecordStore) FindByID(ctx context.Context, id string) (*settlement.ClientRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ClientRecord), args.Error(1)
}

func (m *MockClientRecordStore) FindBySession(ctx context.Context, sessionID string) (*settlement.ClientRecord, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ClientRecord), args.Error(1)
}

func (m *MockClientRecordStore) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*settlement.ClientRecord, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ClientRecord), args.Error(1)
}

func (m *MockClientRecordStore) Update(ctx context.Context, id string, patch settlement.ClientPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *MockClientRecordStore) FindManyPendingSettlement(ctx context.Context, limit int) ([]*settlement.ClientRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*settlement.ClientRecord), args.Error(1)
}

// MockNotifier is a mock implementation of notification.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendReceipt(ctx context.Context, receipt notification.Receipt) error {
	return m.Called(ctx, receipt).Error(0)
}

// MockSettler is a mock implementation of Settler
type MockSettler struct {
	mock.Mock
}

func (m *MockSettler) Settle(ctx context.Context, req appsettlement.SettleRequest) (*settlement.TransferRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.TransferRecord), args.Error(1)
}

type processorFixture struct {
	gateway   *MockPaymentGateway
	store     *MockClientRecordStore
	notifier  *MockNotifier
	settler   *MockSettler
	queue     *jobqueue.Queue
	processor *Processor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	f := &processorFixture{
		gateway:  new(MockPaymentGateway),
		store:    new(MockClientRecordStore),
		notifier: new(MockNotifier),
		settler:  new(MockSettler),
		queue:    jobqueue.New(jobqueue.Config{Concurrency: 2}, zap.NewNop()),
	}
	f.queue.Start(context.Background())
	t.Cleanup(func() {
		_ = f.queue.Stop(context.Background())
	})

	f.processor = NewProcessor(ProcessorConfig{
		WebhookSecret: testSecret,
		Gateway:       f.gateway,
		Store:         f.store,
		Notifier:      f.notifier,
		Dedup:         cache.NewDedupStore(cache.NewMemoryCache()),
		DedupTTL:      time.Hour,
		Queue:         f.queue,
		Settler:       f.settler,
		ReceiptPolicy: retry.Policy{MaxAttempts: 4},
		AgencyName:    "ShipFunnel",
		Logger:        zap.NewNop(),
	})
	return f
}

func (f *processorFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.queue.Wait(ctx))
}

func signedEvent(t *testing.T, id, eventType, object string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, time.Now().Unix(), object))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

const sessionObject = `{"id":"cs_1","object":"checkout.session","client_reference_id":"c-1","payment_intent":"pi_1","payment_status":"paid"}`

func paidSession() *settlement.ChargeState {
	return &settlement.ChargeState{
		SessionID:       "cs_1",
		PaymentIntentID: "pi_1",
		ChargeID:        "ch_1",
		Paid:            true,
		Status:          "paid",
		AmountCents:     10000,
		Currency:        "usd",
		CustomerEmail:   "ana@example.com",
		ClientID:        "c-1",
	}
}

func settleableRecord() *settlement.ClientRecord {
	return &settlement.ClientRecord{
		ID:                     "c-1",
		Email:                  "ana@example.com",
		SessionID:              "cs_1",
		PaymentStatus:          "paid",
		DestinationAccount:     "acct_dest",
		DestinationAmountCents: 9457,
	}
}

func TestProcessor_InvalidSignature(t *testing.T) {
	f := newProcessorFixture(t)
	payload, _ := signedEvent(t, "evt_1", EventCheckoutCompleted, sessionObject)

	result, err := f.processor.ProcessWebhook(context.Background(), payload, "t=1,v1=bad")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, 0, f.processor.Events().Len())
}

func TestProcessor_ReplayIsProcessedOnce(t *testing.T) {
	f := newProcessorFixture(t)
	f.gateway.On("GetCheckoutSession", mock.Anything, "cs_1").Return(paidSession(), nil)
	f.store.On("FindByID", mock.Anything, "c-1").Return(settleableRecord(), nil)
	f.notifier.On("SendReceipt", mock.Anything, mock.MatchedBy(func(r notification.Receipt) bool {
		return r.To == "ana@example.com"
	})).Return(nil)
	f.settler.On("Settle", mock.Anything, appsettlement.SettleRequest{SessionID: "cs_1", ClientID: "c-1", PaymentIntentID: "pi_1"}).
		Return(&settlement.TransferRecord{TransferID: "tr_1"}, nil)

	payload, header := signedEvent(t, "evt_1", EventCheckoutCompleted, sessionObject)

	first, err := f.processor.ProcessWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.True(t, first.Queued)
	assert.False(t, first.Duplicate)
	assert.Contains(t, first.JobID, fulfillJobName)

	for i := 0; i < 2; i++ {
		again, err := f.processor.ProcessWebhook(context.Background(), payload, header)
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.False(t, again.Queued)
	}
	f.wait(t)

	f.notifier.AssertNumberOfCalls(t, "SendReceipt", 1)
	f.settler.AssertNumberOfCalls(t, "Settle", 1)

	recent := f.processor.Events().Recent(0)
	require.Len(t, recent, 3)
	assert.True(t, recent[0].Duplicate)
	assert.False(t, recent[2].Duplicate)
	assert.Equal(t, "cs_1", recent[2].ObjectID)
}

func TestProcessor_SessionAndIntentEventsShareOneReceipt(t *testing.T) {
	f := newProcessorFixture(t)
	f.gateway.On("GetCheckoutSession", mock.Anything, "cs_1").Return(paidSession(), nil)
	intent := paidSession()
	intent.SessionID = ""
	f.gateway.On("GetPaymentIntent", mock.Anything, "pi_1").Return(intent, nil)
	f.store.On("FindByID", mock.Anything, "c-1").Return(settleableRecord(), nil)
	f.notifier.On("SendReceipt", mock.Anything, mock.Anything).Return(nil)
	f.settler.On("Settle", mock.Anything, mock.Anything).
		Return(&settlement.TransferRecord{TransferID: "tr_1"}, nil).Once()
	f.settler.On("Settle", mock.Anything, mock.Anything).
		Return(nil, shared.NewConflictError("already settled"))

	payload, header := signedEvent(t, "evt_1", EventCheckoutCompleted, sessionObject)
	_, err := f.processor.ProcessWebhook(context.Background(), payload, header)
	require.NoError(t, err)

	payload, header = signedEvent(t, "evt_2", EventPaymentIntentSucceeded,
		`{"id":"pi_1","object":"payment_intent","metadata":{"client_id":"c-1"}}`)
	_, err = f.processor.ProcessWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	f.wait(t)

	f.notifier.AssertNumberOfCalls(t, "SendReceipt", 1)
}

func TestProcessor_ReceiptRetries(t *testing.T) {
	t.Run("succeeds on the last attempt", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.gateway.On("GetCheckoutSession", mock.Anything, "cs_1").Return(paidSession(), nil)
		f.store.On("FindByID", mock.Anything, "c-1").Return(settleableRecord(), nil)
		f.notifier.On("SendReceipt", mock.Anything, mock.Anything).Return(errors.New("smtp timeout")).Times(3)
		f.notifier.On("SendReceipt", mock.Anything, mock.Anything).Return(nil).Once()
		f.settler.On("Settle", mock.Anything, mock.Anything).Return(&settlement.TransferRecord{TransferID: "tr_1"}, nil)

		payload, header := signedEvent(t, "evt_1", EventCheckoutCompleted, sessionObject)
		_, err := f.processor.ProcessWebhook(context.Background(), payload, header)
		require.NoError(t, err)
		f.wait(t)

		f.notifier.AssertNumberOfCalls(t, "SendReceipt", 4)
		f.settler.AssertNumberOfCalls(t, "Settle", 1)
	})

	t.Run("stops without settling when every attempt fails", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.gateway.On("GetCheckoutSession", mock.Anything, "cs_1").Return(paidSession(), nil)
		f.store.On("FindByID", mock.Anything, "c-1").Return(settleableRecord(), nil)
		f.notifier.On("SendReceipt", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		payload, header := signedEvent(t, "evt_1", EventCheckoutCompleted, sessionObject)
		_, err := f.processor.ProcessWebhook(context.Background(), payload, header)
		require.NoError(t, err)
		f.wait(t)

		f.notifier.AssertNumberOfCalls(t, "SendReceipt", 4)
		f.settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	})

	t.Run("exhausted retries log for follow-up without failing the job", func(t *testing.T) {
		f := newProcessorFixture(t)
		core, logs := observer.New(zap.InfoLevel)
		f.processor.logger = zap.New(core)
		f.gateway.On("GetCheckoutSession", mock.Anything, "cs_1").Return(paidSession(), nil)
		f.store.On("FindByID", mock.Anything, "c-1").Return(settleableRecord(), nil)
		f.notifier.On("SendReceipt", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		err := f.processor.fulfillPayment(context.Background(), fulfillment{EventID: "evt_1", SessionID: "cs_1"})
		require.NoError(t, err)

		failed := logs.FilterMessage("Receipt delivery failed after retries, manual follow-up required").All()
		require.Len(t, failed, 1)
		assert.Equal(t, zap.ErrorLevel, failed[0].Level)
		assert.Equal(t, "evt_1", failed[0].ContextMap()["event_id"])
		f.settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	})
}

func TestProcessor_UnpaidSessionIsNotFulfilled(t *testing.T) {
	f := newProcessorFixture(t)
	unpaid := paidSession()
	unpaid.Paid = false
	unpaid.Status = "unpaid"
	f.gateway.On("GetCheckoutSession", mock.Anything, "cs_1").Return(unpaid, nil)

	payload, header := signedEvent(t, "evt_1", EventCheckoutCompleted, sessionObject)
	_, err := f.processor.ProcessWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	f.wait(t)

	f.notifier.AssertNotCalled(t, "SendReceipt", mock.Anything, mock.Anything)
	f.settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
}

func TestProcessor_MarksUnpaidRecordPaid(t *testing.T) {
	f := newProcessorFixture(t)
	record := settleableRecord()
	record.PaymentStatus = "pending"
	record.DestinationAccount = ""
	f.gateway.On("GetCheckoutSession", mock.Anything, "cs_1").Return(paidSession(), nil)
	f.store.On("FindByID", mock.Anything, "c-1").Return(record, nil)
	f.store.On("Update", mock.Anything, "c-1", mock.MatchedBy(func(p settlement.ClientPatch) bool {
		return p.PaymentStatus != nil && *p.PaymentStatus == "paid" &&
			p.PaymentIntentID != nil && *p.PaymentIntentID == "pi_1"
	})).Return(nil).Once()
	f.notifier.On("SendReceipt", mock.Anything, mock.Anything).Return(nil)

	payload, header := signedEvent(t, "evt_1", EventCheckoutCompleted, sessionObject)
	_, err := f.processor.ProcessWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	f.wait(t)

	f.store.AssertExpectations(t)
	f.settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
}

func TestProcessor_OtherEventsAreAcknowledged(t *testing.T) {
	f := newProcessorFixture(t)

	for i, eventType := range []string{EventPaymentIntentFailed, EventChargeRefunded, "customer.created"} {
		payload, header := signedEvent(t, fmt.Sprintf("evt_%d", i), eventType, `{"id":"obj_1"}`)

		result, err := f.processor.ProcessWebhook(context.Background(), payload, header)
		require.NoError(t, err)
		assert.False(t, result.Queued)
		assert.Equal(t, eventType, result.EventType)
	}
	assert.Equal(t, 0, f.processor.QueueDepth())
	assert.Equal(t, 3, f.processor.Events().Len())
}

func TestEventLog(t *testing.T) {
	log := NewEventLog(3)
	assert.Empty(t, log.Recent(0))

	for i := 1; i <= 5; i++ {
		log.Append(EventLogEntry{ID: fmt.Sprintf("evt_%d", i)})
	}

	assert.Equal(t, 3, log.Len())
	recent := log.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "evt_5", recent[0].ID)
	assert.Equal(t, "evt_3", recent[2].ID)

	assert.Len(t, log.Recent(2), 2)
	assert.Equal(t, DefaultEventLogSize, len(NewEventLog(0).entries))
}
