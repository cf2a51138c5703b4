package settlement

import (
	"errors"
	"time"

	"github.com/shipfunnel/backend/internal/domain/settlement"
)

// SettleRequest identifies the payment to settle. At least one of SessionID
// and PaymentIntentID is required; ClientID narrows the record lookup.
type SettleRequest struct {
	SessionID       string `json:"sessionId"`
	ClientID        string `json:"clientId,omitempty"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
}

// ProcessPendingRequest controls a bulk settlement run
type ProcessPendingRequest struct {
	Force  bool `json:"force"`
	DryRun bool `json:"dryRun"`
}

// PendingItem is the outcome of one record in a bulk run
type PendingItem struct {
	ClientID    string `json:"clientId"`
	AmountCents int64  `json:"amountCents"`
	Status      string `json:"status"` // queued, would_queue, skipped
	Reason      string `json:"reason,omitempty"`
	JobID       string `json:"jobId,omitempty"`
}

// Bulk run item statuses
const (
	PendingQueued     = "queued"
	PendingWouldQueue = "would_queue"
	PendingSkipped    = "skipped"
)

// ProcessPendingResult summarizes a bulk run
type ProcessPendingResult struct {
	Mode        settlement.DispatchMode `json:"mode"`
	DryRun      bool                    `json:"dryRun"`
	Skipped     string                  `json:"skipped,omitempty"`
	TotalFound  int                     `json:"totalFound"`
	TotalQueued int                     `json:"totalQueued"`
	TotalAmount int64                   `json:"totalAmount"`
	QueueDepth  int                     `json:"queueDepth"`
	Results     []PendingItem           `json:"results"`
}

// TransferStatusResponse describes the settlement state of one client
type TransferStatusResponse struct {
	ClientID               string                     `json:"clientId"`
	PaymentStatus          string                     `json:"paymentStatus"`
	DestinationAccount     string                     `json:"destinationAccount,omitempty"`
	DestinationAmountCents int64                      `json:"destinationAmountCents"`
	Settled                bool                       `json:"settled"`
	Transfer               *settlement.TransferRecord `json:"transfer,omitempty"`
	Eligible               bool                       `json:"eligible"`
	CheckedAt              time.Time                  `json:"checkedAt"`
}

var errUnexpectedPayload = errors.New("settlement: unexpected job payload")
