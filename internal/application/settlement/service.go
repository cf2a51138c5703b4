package settlement

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/quote"
	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/config"
	"github.com/shipfunnel/backend/internal/infrastructure/jobqueue"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
	"github.com/shipfunnel/backend/internal/infrastructure/telemetry"
)

const inflightKeyPrefix = "settlement:inflight:"

// Repricer prices a stored quote input again
type Repricer interface {
	Reprice(ctx context.Context, in quote.Input) (*quote.Quote, error)
}

// JobQueue schedules background work
type JobQueue interface {
	Enqueue(name string, fn jobqueue.Func, payload any) (string, error)
	Depth() int
}

// Service settles paid orders by transferring the destination share to the
// connected account. A record is settled at most once: the persisted transfer
// id, an in-flight claim in the shared cache and the provider idempotency key
// each reject a second attempt.
type Service struct {
	gateway     settlement.PaymentGateway
	store       settlement.ClientRecordStore
	repricer    Repricer
	cache       shared.Cache
	queue       JobQueue
	fees        settlement.FeeSchedule
	currency    string
	defaults    settlement.DispatchConfig
	inflightTTL time.Duration
	metrics     *telemetry.FunnelMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records transfer outcomes
func WithMetrics(m *telemetry.FunnelMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a new settlement Service
func NewService(
	gateway settlement.PaymentGateway,
	store settlement.ClientRecordStore,
	repricer Repricer,
	cache shared.Cache,
	queue JobQueue,
	cfg *config.Config,
	log *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		gateway:     gateway,
		store:       store,
		repricer:    repricer,
		cache:       cache,
		queue:       queue,
		fees:        settlement.NewFeeSchedule(cfg.Fees.StripePercent, cfg.Fees.StripeFixed, cfg.Fees.PlatformRate, cfg.Fees.PlatformMinCents),
		currency:    cfg.Stripe.Currency,
		defaults:    DispatchConfigFromConfig(cfg.Transfer),
		inflightTTL: cfg.Transfer.InflightLockTTL,
		logger:      log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fees returns the fee schedule used for splits
func (s *Service) Fees() settlement.FeeSchedule {
	return s.fees
}

// Settle transfers the destination share of a paid order
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*settlement.TransferRecord, error) {
	log := logger.FromContextOr(ctx, s.logger).With(
		zap.String("session_id", req.SessionID),
		zap.String("client_id", req.ClientID),
		zap.String("payment_intent_id", req.PaymentIntentID),
	)

	charge, err := s.chargeState(ctx, req)
	if err != nil {
		return nil, err
	}
	if !charge.Paid {
		return nil, shared.NewValidationError("payment is not completed").
			WithDetails(map[string]any{"status": charge.Status})
	}

	record, err := s.resolveRecord(ctx, req, charge)
	if err != nil {
		return nil, err
	}
	if err := chargeBelongsTo(charge, record); err != nil {
		log.Warn("Charge does not belong to client record", zap.String("record_id", record.ID), zap.Error(err))
		return nil, err
	}
	if record.HasTransfer() {
		return nil, alreadySettled(record)
	}

	amount := s.destinationAmount(ctx, log, record, charge)
	var missing []string
	if !settlement.ValidDestination(record.DestinationAccount) {
		missing = append(missing, "destinationAccount")
	}
	if amount <= 0 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return nil, shared.NewValidationError("client %s cannot be settled", record.ID).
			WithDetails(map[string]any{"missing": missing})
	}

	sessionID := firstNonEmpty(charge.SessionID, record.SessionID)
	paymentIntentID := firstNonEmpty(charge.PaymentIntentID, record.PaymentIntentID)
	idemKey := settlement.IdempotencyKey(record.ID, sessionID, paymentIntentID)

	release, err := s.claimInflight(ctx, log, idemKey)
	if err != nil {
		return nil, err
	}
	defer release()

	currency := firstNonEmpty(charge.Currency, record.Currency, s.currency)
	transfer, err := s.gateway.CreateTransfer(ctx, settlement.TransferRequest{
		DestinationAccount: record.DestinationAccount,
		AmountCents:        amount,
		Currency:           currency,
		SourceTransaction:  charge.ChargeID,
		IdempotencyKey:     idemKey,
		Metadata: map[string]string{
			"client_id":         record.ID,
			"session_id":        sessionID,
			"payment_intent_id": paymentIntentID,
		},
	})
	if err != nil {
		s.metrics.Transfer(ctx, "failed", 0)
		log.Error("Transfer failed", zap.Int64("amount_cents", amount), zap.Error(err))
		if _, ok := shared.AsDomainError(err); ok {
			return nil, err
		}
		return nil, shared.NewUpstreamError("transfer failed: %v", err)
	}

	result := &settlement.TransferRecord{
		TransferID:         transfer.ID,
		DestinationAccount: record.DestinationAccount,
		AmountCents:        amount,
		Currency:           currency,
		SourceTransaction:  charge.ChargeID,
		IdempotencyKey:     idemKey,
		TransferredAt:      transfer.Created,
		Status:             settlement.TransferCompleted,
	}
	if result.TransferredAt.IsZero() {
		result.TransferredAt = s.now().UTC()
	}

	paid := settlement.PaymentStatusPaid
	patch := settlement.ClientPatch{Transfer: result, PaymentStatus: &paid}
	if record.PaymentIntentID == "" && paymentIntentID != "" {
		patch.PaymentIntentID = &paymentIntentID
	}
	if err := s.store.Update(ctx, record.ID, patch); err != nil {
		if shared.IsCode(err, shared.CodeConflict) {
			return nil, err
		}
		// The provider holds the transfer but the record does not. A retry reuses
		// the idempotency key and gets the same transfer back.
		log.Error("Transfer created but not recorded",
			zap.String("transfer_id", transfer.ID),
			zap.String("idempotency_key", idemKey),
			zap.Error(err))
		s.metrics.Transfer(ctx, "unrecorded", amount)
		return nil, shared.NewInternalError("transfer %s was created but could not be recorded", transfer.ID).
			WithDetails(map[string]any{"transferId": transfer.ID})
	}

	s.metrics.Transfer(ctx, "completed", amount)
	log.Info("Transfer completed",
		zap.String("transfer_id", transfer.ID),
		zap.String("destination", record.DestinationAccount),
		zap.Int64("amount_cents", amount))
	return result, nil
}

// TransferStatus reports whether a client has been settled
func (s *Service) TransferStatus(ctx context.Context, clientID string) (*TransferStatusResponse, error) {
	record, err := s.store.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("client %s not found", clientID)
		}
		return nil, err
	}

	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}

	return &TransferStatusResponse{
		ClientID:               record.ID,
		PaymentStatus:          record.PaymentStatus,
		DestinationAccount:     record.DestinationAccount,
		DestinationAmountCents: record.DestinationAmountCents,
		Settled:                record.HasTransfer(),
		Transfer:               record.Transfer,
		Eligible: !record.HasTransfer() &&
			settlement.ValidDestination(record.DestinationAccount) &&
			cfg.Eligible(record.DestinationAmountCents),
		CheckedAt: s.now().UTC(),
	}, nil
}

func (s *Service) chargeState(ctx context.Context, req SettleRequest) (*settlement.ChargeState, error) {
	switch {
	case req.SessionID != "":
		return s.gateway.GetCheckoutSession(ctx, req.SessionID)
	case req.PaymentIntentID != "":
		return s.gateway.GetPaymentIntent(ctx, req.PaymentIntentID)
	default:
		return nil, shared.NewValidationError("sessionId or paymentIntentId is required").
			WithDetails(map[string]any{"missing": []string{"sessionId"}})
	}
}

func (s *Service) resolveRecord(ctx context.Context, req SettleRequest, charge *settlement.ChargeState) (*settlement.ClientRecord, error) {
	var (
		record *settlement.ClientRecord
		err    error
	)
	switch clientID := firstNonEmpty(req.ClientID, charge.ClientID); {
	case clientID != "":
		record, err = s.store.FindByID(ctx, clientID)
	case charge.SessionID != "":
		record, err = s.store.FindBySession(ctx, charge.SessionID)
	default:
		record, err = s.store.FindByPaymentIntent(ctx, charge.PaymentIntentID)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("client record not found for this payment")
		}
		return nil, err
	}
	return record, nil
}

// chargeBelongsTo requires at least one identifier shared by the record and
// the verified charge, and no identifier the two disagree on.
func chargeBelongsTo(charge *settlement.ChargeState, record *settlement.ClientRecord) error {
	type pair struct{ field, recorded, charged string }
	pairs := []pair{
		{"clientId", record.ID, charge.ClientID},
		{"sessionId", record.SessionID, charge.SessionID},
		{"paymentIntentId", record.PaymentIntentID, charge.PaymentIntentID},
	}

	linked := false
	var mismatched []string
	for _, p := range pairs {
		if p.recorded == "" || p.charged == "" {
			continue
		}
		if p.recorded != p.charged {
			mismatched = append(mismatched, p.field)
			continue
		}
		linked = true
	}
	if len(mismatched) > 0 || !linked {
		return shared.NewValidationError("payment does not belong to client %s", record.ID).
			WithDetails(map[string]any{"mismatched": mismatched})
	}
	return nil
}

// destinationAmount picks the amount owed to the connected account. Agency
// orders with a stored quote are priced again; otherwise the amount computed
// at checkout is used, and the charge split is the last resort.
func (s *Service) destinationAmount(ctx context.Context, log *zap.Logger, record *settlement.ClientRecord, charge *settlement.ChargeState) int64 {
	if record.IsAgencyOrder() && record.QuoteInput != nil && s.repricer != nil {
		q, err := s.repricer.Reprice(ctx, *record.QuoteInput)
		if err == nil {
			return settlement.ComputeSplit(q.TotalCents(), s.fees).DestinationCents
		}
		log.Warn("Agency order could not be re-quoted", zap.Error(err))
	}
	if record.DestinationAmountCents > 0 {
		return record.DestinationAmountCents
	}
	if charge.AmountCents > 0 {
		return settlement.ComputeSplit(charge.AmountCents, s.fees).DestinationCents
	}
	return 0
}

// claimInflight blocks a concurrent settlement of the same key. A cache
// failure is logged and the provider idempotency key remains the guard.
func (s *Service) claimInflight(ctx context.Context, log *zap.Logger, idemKey string) (func(), error) {
	key := inflightKeyPrefix + idemKey
	n, err := s.cache.IncrementWithTTL(ctx, key, s.inflightTTL)
	if err != nil {
		log.Warn("In-flight claim unavailable", zap.String("key", key), zap.Error(err))
		return func() {}, nil
	}
	if n > 1 {
		return nil, shared.NewConflictError("a settlement for this payment is already in progress").
			WithDetails(map[string]any{"idempotencyKey": idemKey})
	}
	return func() {
		if err := s.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("Failed to release in-flight claim", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func alreadySettled(record *settlement.ClientRecord) error {
	return shared.NewConflictError("client %s was already settled", record.ID).
		WithDetails(map[string]any{
			"transferId":    record.Transfer.TransferID,
			"transferredAt": record.Transfer.TransferredAt,
		})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
