package settlement

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/infrastructure/config"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
)

const (
	dispatchConfigKey = "settlement:transfer-config"
	settleJobName     = "settle-transfer"
)

// DispatchConfigFromConfig converts the loaded transfer section into a dispatch policy
func DispatchConfigFromConfig(cfg config.TransferConfig) settlement.DispatchConfig {
	mins := make(map[settlement.DispatchMode]int64, len(cfg.MinAmountCents))
	for mode, cents := range cfg.MinAmountCents {
		mins[settlement.DispatchMode(strings.ToLower(mode))] = cents
	}
	return settlement.DispatchConfig{
		Mode:           settlement.DispatchMode(cfg.Mode),
		MinAmountCents: mins,
		WeeklyDay:      cfg.WeeklyDay,
		MonthlyDay:     cfg.MonthlyDay,
		BatchLimit:     cfg.BatchLimit,
	}
}

// Config returns the active dispatch policy. The stored policy wins over the
// loaded defaults; an unreadable store falls back to the defaults.
func (s *Service) Config(ctx context.Context) (settlement.DispatchConfig, error) {
	var stored settlement.DispatchConfig
	found, err := s.cache.Get(ctx, dispatchConfigKey, &stored)
	if err != nil {
		logger.FromContextOr(ctx, s.logger).Warn("Transfer config unavailable, using defaults", zap.Error(err))
		return s.defaults, nil
	}
	if !found {
		return s.defaults, nil
	}
	if stored.MinAmountCents == nil {
		stored.MinAmountCents = s.defaults.MinAmountCents
	}
	return stored, nil
}

// UpdateConfig validates and persists a new dispatch policy
func (s *Service) UpdateConfig(ctx context.Context, cfg settlement.DispatchConfig) (settlement.DispatchConfig, error) {
	if cfg.MinAmountCents == nil {
		cfg.MinAmountCents = s.defaults.MinAmountCents
	}
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = s.defaults.BatchLimit
	}
	if cfg.WeeklyDay == "" {
		cfg.WeeklyDay = s.defaults.WeeklyDay
	}
	if cfg.MonthlyDay == 0 {
		cfg.MonthlyDay = s.defaults.MonthlyDay
	}
	if err := cfg.Validate(); err != nil {
		return settlement.DispatchConfig{}, err
	}

	now := s.now().UTC()
	cfg.UpdatedAt = &now
	if err := s.cache.Set(ctx, dispatchConfigKey, cfg, 0); err != nil {
		return settlement.DispatchConfig{}, err
	}

	logger.FromContextOr(ctx, s.logger).Info("Transfer config updated",
		zap.String("mode", string(cfg.Mode)),
		zap.Int64("min_amount_cents", cfg.MinimumCents()))
	return cfg, nil
}

// ProcessPending queues one settlement job per eligible pending record.
// Settlement itself never runs on the caller's goroutine.
func (s *Service) ProcessPending(ctx context.Context, req ProcessPendingRequest) (*ProcessPendingResult, error) {
	log := logger.FromContextOr(ctx, s.logger)

	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}

	result := &ProcessPendingResult{
		Mode:    cfg.Mode,
		DryRun:  req.DryRun,
		Results: make([]PendingItem, 0),
	}

	if due, reason := cfg.Due(s.now(), req.Force); !due {
		result.Skipped = reason
		result.QueueDepth = s.queue.Depth()
		log.Info("Pending transfers not dispatched", zap.String("reason", reason))
		return result, nil
	}

	records, err := s.store.FindManyPendingSettlement(ctx, cfg.BatchLimit)
	if err != nil {
		return nil, err
	}
	result.TotalFound = len(records)

	for _, record := range records {
		item := PendingItem{ClientID: record.ID, AmountCents: record.DestinationAmountCents}

		switch {
		case !settlement.ValidDestination(record.DestinationAccount):
			item.Status = PendingSkipped
			item.Reason = "missing destination account"
		case !cfg.Eligible(record.DestinationAmountCents):
			item.Status = PendingSkipped
			item.Reason = "below minimum amount"
		case req.DryRun:
			item.Status = PendingWouldQueue
			result.TotalAmount += record.DestinationAmountCents
		default:
			jobID, err := s.queue.Enqueue(settleJobName, s.settleJob, SettleRequest{
				ClientID:        record.ID,
				SessionID:       record.SessionID,
				PaymentIntentID: record.PaymentIntentID,
			})
			if err != nil {
				item.Status = PendingSkipped
				item.Reason = err.Error()
				break
			}
			item.Status = PendingQueued
			item.JobID = jobID
			result.TotalQueued++
			result.TotalAmount += record.DestinationAmountCents
		}

		result.Results = append(result.Results, item)
	}

	result.QueueDepth = s.queue.Depth()
	log.Info("Pending transfers processed",
		zap.String("mode", string(cfg.Mode)),
		zap.Bool("dry_run", req.DryRun),
		zap.Int("found", result.TotalFound),
		zap.Int("queued", result.TotalQueued),
		zap.Int64("amount_cents", result.TotalAmount))
	return result, nil
}

// settleJob is the queue body for a settlement; payload must be a SettleRequest
func (s *Service) settleJob(ctx context.Context, payload any) error {
	req, ok := payload.(SettleRequest)
	if !ok {
		return errUnexpectedPayload
	}
	_, err := s.Settle(ctx, req)
	return err
}

// RunScheduled dispatches pending transfers when the active policy is one of
// the scheduled modes. Other modes report ran=false and touch nothing; the
// calendar check itself stays in ProcessPending.
func (s *Service) RunScheduled(ctx context.Context) (result *ProcessPendingResult, ran bool, err error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, false, err
	}
	if !cfg.Mode.Scheduled() {
		return nil, false, nil
	}
	result, err = s.ProcessPending(ctx, ProcessPendingRequest{})
	if err != nil {
		return nil, false, err
	}
	return result, result.Skipped == "", nil
}
