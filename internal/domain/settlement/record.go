package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shipfunnel/backend/internal/domain/quote"
)

// DestinationPrefix identifies a connected provider account
const DestinationPrefix = "acct_"

// PaymentStatusPaid marks a record whose charge the provider confirmed
const PaymentStatusPaid = "paid"

// TransferStatus is the state of a settlement transfer
type TransferStatus string

const (
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// TransferRecord is the settlement of one ClientRecord
type TransferRecord struct {
	TransferID         string         `json:"transferId"`
	DestinationAccount string         `json:"destinationAccount"`
	AmountCents        int64          `json:"amountCents"`
	Currency           string         `json:"currency"`
	SourceTransaction  string         `json:"sourceTransaction,omitempty"`
	IdempotencyKey     string         `json:"idempotencyKey"`
	TransferredAt      time.Time      `json:"transferredAt"`
	Status             TransferStatus `json:"status"`
}

// ClientRecord is an order and its billing state
type ClientRecord struct {
	ID                     string
	Name                   string
	Email                  string
	PaymentMethod          quote.PaymentMethod
	SessionID              string
	PaymentIntentID        string
	AmountCents            int64
	Currency               string
	PaymentStatus          string
	DestinationAccount     string
	DestinationAmountCents int64
	QuoteInput             *quote.Input
	Transfer               *TransferRecord
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasTransfer reports whether the record was already settled
func (r *ClientRecord) HasTransfer() bool {
	return r.Transfer != nil && r.Transfer.TransferID != ""
}

// IsAgencyOrder reports whether the customer pays at the agency
func (r *ClientRecord) IsAgencyOrder() bool {
	return r.PaymentMethod == quote.PaymentAgency
}

// ClientPatch is a partial update of a ClientRecord. Nil fields are left unchanged.
type ClientPatch struct {
	SessionID              *string
	PaymentIntentID        *string
	AmountCents            *int64
	Currency               *string
	PaymentStatus          *string
	DestinationAccount     *string
	DestinationAmountCents *int64
	QuoteInput             *quote.Input
	Transfer               *TransferRecord
}

// ValidDestination reports whether account looks like a connected account id
func ValidDestination(account string) bool {
	return strings.HasPrefix(account, DestinationPrefix) && len(account) > len(DestinationPrefix)
}

// IdempotencyKey derives the provider idempotency key for a settlement.
// The same client and session always yield the same key.
func IdempotencyKey(clientID, sessionID, paymentIntentID string) string {
	if clientID != "" && sessionID != "" {
		return fmt.Sprintf("transfer_%s_%s", clientID, sessionID)
	}
	return "transfer_pi_" + paymentIntentID
}
