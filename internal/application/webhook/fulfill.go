package webhook

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appsettlement "github.com/shipfunnel/backend/internal/application/settlement"
	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
	"github.com/shipfunnel/backend/internal/infrastructure/notify"
	"github.com/shipfunnel/backend/internal/infrastructure/retry"
)

// fulfillPayment is the job body for a successful payment event:
// re-verify with the provider, send the receipt once, then settle.
func (p *Processor) fulfillPayment(ctx context.Context, payload any) error {
	job, ok := payload.(fulfillment)
	if !ok {
		return fmt.Errorf("webhook: unexpected job payload %T", payload)
	}
	ctx, log := logger.WithFields(ctx, p.logger, zap.String("event_id", job.EventID))
	log = log.With(
		zap.String("session_id", job.SessionID),
		zap.String("payment_intent_id", job.PaymentIntentID),
	)

	charge, err := p.verifyPayment(ctx, job)
	if err != nil {
		return err
	}
	if !charge.Paid {
		log.Info("Payment not completed, skipping fulfillment", zap.String("status", charge.Status))
		return nil
	}

	record := p.findRecord(ctx, log, job, charge)
	if record != nil && record.PaymentStatus != settlement.PaymentStatusPaid {
		paid := settlement.PaymentStatusPaid
		patch := settlement.ClientPatch{PaymentStatus: &paid}
		if record.PaymentIntentID == "" && charge.PaymentIntentID != "" {
			patch.PaymentIntentID = &charge.PaymentIntentID
		}
		if err := p.store.Update(ctx, record.ID, patch); err != nil {
			log.Warn("Failed to mark client record paid", zap.String("client_id", record.ID), zap.Error(err))
		}
	}

	if err := p.sendReceiptOnce(ctx, log, charge, record); err != nil {
		log.Error("Receipt delivery failed after retries, manual follow-up required",
			zap.String("customer_email", charge.CustomerEmail),
			zap.Error(err))
		return nil
	}

	if record == nil {
		return nil
	}
	if !settlement.ValidDestination(record.DestinationAccount) {
		log.Info("No connected account for client, skipping settlement", zap.String("client_id", record.ID))
		return nil
	}
	if record.DestinationAmountCents <= 0 && charge.AmountCents <= 0 {
		log.Info("Nothing to settle", zap.String("client_id", record.ID))
		return nil
	}

	transfer, err := p.settler.Settle(ctx, appsettlement.SettleRequest{
		SessionID:       charge.SessionID,
		ClientID:        record.ID,
		PaymentIntentID: charge.PaymentIntentID,
	})
	switch {
	case err == nil:
		log.Info("Payment fulfilled", zap.String("transfer_id", transfer.TransferID))
	case shared.IsCode(err, shared.CodeConflict):
		log.Info("Payment already settled", zap.Error(err))
	default:
		log.Error("Settlement after payment failed", zap.String("client_id", record.ID), zap.Error(err))
	}
	return nil
}

func (p *Processor) verifyPayment(ctx context.Context, job fulfillment) (*settlement.ChargeState, error) {
	if job.SessionID != "" {
		return p.gateway.GetCheckoutSession(ctx, job.SessionID)
	}
	return p.gateway.GetPaymentIntent(ctx, job.PaymentIntentID)
}

func (p *Processor) findRecord(ctx context.Context, log *zap.Logger, job fulfillment, charge *settlement.ChargeState) *settlement.ClientRecord {
	var (
		record *settlement.ClientRecord
		err    error
	)
	switch {
	case job.ClientID != "" || charge.ClientID != "":
		id := job.ClientID
		if id == "" {
			id = charge.ClientID
		}
		record, err = p.store.FindByID(ctx, id)
	case charge.SessionID != "":
		record, err = p.store.FindBySession(ctx, charge.SessionID)
	default:
		record, err = p.store.FindByPaymentIntent(ctx, charge.PaymentIntentID)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("No client record for payment")
		} else {
			log.Error("Failed to load client record", zap.Error(err))
		}
		return nil
	}
	return record
}

// sendReceiptOnce delivers the receipt unless its marker is already claimed.
// Session and intent events for the same payment share one marker.
func (p *Processor) sendReceiptOnce(ctx context.Context, log *zap.Logger, charge *settlement.ChargeState, record *settlement.ClientRecord) error {
	key := charge.PaymentIntentID
	if key == "" {
		key = charge.SessionID
	}
	markerKey := "receipt:" + key

	data := notify.ReceiptData{
		AgencyName:      p.agencyName,
		CustomerName:    charge.CustomerName,
		CustomerEmail:   charge.CustomerEmail,
		AmountCents:     charge.AmountCents,
		Currency:        charge.Currency,
		PaymentIntentID: charge.PaymentIntentID,
		SessionID:       charge.SessionID,
	}
	if record != nil {
		if data.CustomerEmail == "" {
			data.CustomerEmail = record.Email
		}
		if data.CustomerName == "" {
			data.CustomerName = record.Name
		}
	}
	if data.CustomerEmail == "" {
		log.Warn("Payment has no customer email, receipt not sent")
		return nil
	}

	receipt, err := notify.BuildReceipt(data)
	if err != nil {
		return err
	}

	claimed, err := p.dedup.Claim(ctx, markerKey, p.dedupTTL)
	if err != nil {
		log.Warn("Receipt marker unavailable, sending anyway", zap.Error(err))
		claimed = true
	}
	if !claimed {
		log.Info("Receipt already sent")
		return nil
	}

	err = retry.Do(ctx, p.receiptPolicy, func(ctx context.Context) error {
		err := p.notifier.SendReceipt(ctx, receipt)
		if shared.IsCode(err, shared.CodeValidation) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		if releaseErr := p.dedup.Release(ctx, markerKey); releaseErr != nil {
			log.Warn("Failed to release receipt marker", zap.Error(releaseErr))
		}
		return err
	}

	log.Info("Receipt sent", zap.String("to", receipt.To))
	return nil
}
