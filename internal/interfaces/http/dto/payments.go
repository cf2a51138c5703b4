package dto

import (
	"time"

	"github.com/shipfunnel/backend/internal/domain/quote"
	"github.com/shipfunnel/backend/internal/domain/settlement"
)

// ProcessTransferRequest is the body of POST /payments/process-transfer
type ProcessTransferRequest struct {
	SessionID       string `json:"sessionId" binding:"required_without=PaymentIntentID"`
	ClientID        string `json:"clientId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// TransferInfo describes a completed transfer
type TransferInfo struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Destination string    `json:"destination"`
	ProcessedAt time.Time `json:"processedAt"`
}

// ProcessTransferResponse is the success body of POST /payments/process-transfer
type ProcessTransferResponse struct {
	Success  bool         `json:"success"`
	Transfer TransferInfo `json:"transfer"`
}

// NewProcessTransferResponse builds the response for a completed transfer
func NewProcessTransferResponse(tr *settlement.TransferRecord) ProcessTransferResponse {
	return ProcessTransferResponse{
		Success: true,
		Transfer: TransferInfo{
			ID:          tr.TransferID,
			Amount:      tr.AmountCents,
			Currency:    tr.Currency,
			Destination: tr.DestinationAccount,
			ProcessedAt: tr.TransferredAt,
		},
	}
}

// ProcessPendingTransfersRequest is the body of POST /payments/process-pending-transfers
type ProcessPendingTransfersRequest struct {
	Force  bool `json:"force"`
	DryRun bool `json:"dryRun"`
}

// TransferConfigRequest is the body of PUT /payments/transfer-config
type TransferConfigRequest struct {
	Mode           string           `json:"mode" binding:"required,transfer_mode"`
	MinAmountCents map[string]int64 `json:"minAmountCents"`
	WeeklyDay      string           `json:"weeklyDay" binding:"omitempty,weekday"`
	MonthlyDay     int              `json:"monthlyDay" binding:"omitempty,min=1,max=28"`
	BatchLimit     int              `json:"batchLimit" binding:"omitempty,min=1,max=1000"`
}

// ToDispatchConfig converts the request into a dispatch policy
func (r TransferConfigRequest) ToDispatchConfig() settlement.DispatchConfig {
	var mins map[settlement.DispatchMode]int64
	if len(r.MinAmountCents) > 0 {
		mins = make(map[settlement.DispatchMode]int64, len(r.MinAmountCents))
		for mode, cents := range r.MinAmountCents {
			mins[settlement.DispatchMode(mode)] = cents
		}
	}
	return settlement.DispatchConfig{
		Mode:           settlement.DispatchMode(r.Mode),
		MinAmountCents: mins,
		WeeklyDay:      r.WeeklyDay,
		MonthlyDay:     r.MonthlyDay,
		BatchLimit:     r.BatchLimit,
	}
}

// CheckoutSessionRequest is the body of POST /payments/checkout-session
type CheckoutSessionRequest struct {
	Name               string      `json:"name" binding:"required,max=200"`
	Email              string      `json:"email" binding:"required,email"`
	DestinationAccount string      `json:"destinationAccount" binding:"omitempty,stripe_account"`
	Quote              quote.Input `json:"quote"`
}

// CheckoutSessionResponse is the success body of POST /payments/checkout-session
type CheckoutSessionResponse struct {
	ClientID  string       `json:"clientId"`
	SessionID string       `json:"sessionId"`
	URL       string       `json:"url"`
	Quote     *quote.Quote `json:"quote"`
}

// WebhookResponse acknowledges a webhook delivery
type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"eventId,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
