package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shipfunnel/backend/internal/domain/quote"
	"github.com/shipfunnel/backend/internal/domain/settlement"
)

// ClientRecordModel maps settlement.ClientRecord to the client_records table.
// Transfer fields are flattened; TransferID is empty until settled.
type ClientRecordModel struct {
	ID                     string `gorm:"type:varchar(36);primaryKey"`
	Name                   string `gorm:"size:200"`
	Email                  string `gorm:"size:320"`
	PaymentMethod          string `gorm:"size:16"`
	SessionID              string `gorm:"size:255;index"`
	PaymentIntentID        string `gorm:"size:255;index"`
	AmountCents            int64  `gorm:"not null;default:0"`
	Currency               string `gorm:"size:3"`
	PaymentStatus          string `gorm:"size:32"`
	DestinationAccount     string `gorm:"size:255"`
	DestinationAmountCents int64  `gorm:"not null;default:0;index"`
	QuoteInput             string `gorm:"type:text"`

	TransferID                string `gorm:"size:255;index"`
	TransferDestination       string `gorm:"size:255"`
	TransferAmountCents       int64
	TransferCurrency          string `gorm:"size:3"`
	TransferSourceTransaction string `gorm:"size:255"`
	TransferIdempotencyKey    string `gorm:"size:255"`
	TransferredAt             *time.Time
	TransferStatus            string `gorm:"size:16"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name
func (ClientRecordModel) TableName() string {
	return "client_records"
}

// ToDomain converts the model to a domain record
func (m *ClientRecordModel) ToDomain() (*settlement.ClientRecord, error) {
	r := &settlement.ClientRecord{
		ID:                     m.ID,
		Name:                   m.Name,
		Email:                  m.Email,
		PaymentMethod:          quote.PaymentMethod(m.PaymentMethod),
		SessionID:              m.SessionID,
		PaymentIntentID:        m.PaymentIntentID,
		AmountCents:            m.AmountCents,
		Currency:               m.Currency,
		PaymentStatus:          m.PaymentStatus,
		DestinationAccount:     m.DestinationAccount,
		DestinationAmountCents: m.DestinationAmountCents,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}

	if m.QuoteInput != "" {
		var in quote.Input
		if err := json.Unmarshal([]byte(m.QuoteInput), &in); err != nil {
			return nil, fmt.Errorf("client record %s: invalid quote input: %w", m.ID, err)
		}
		r.QuoteInput = &in
	}

	if m.TransferID != "" {
		tr := &settlement.TransferRecord{
			TransferID:         m.TransferID,
			DestinationAccount: m.TransferDestination,
			AmountCents:        m.TransferAmountCents,
			Currency:           m.TransferCurrency,
			SourceTransaction:  m.TransferSourceTransaction,
			IdempotencyKey:     m.TransferIdempotencyKey,
			Status:             settlement.TransferStatus(m.TransferStatus),
		}
		if m.TransferredAt != nil {
			tr.TransferredAt = *m.TransferredAt
		}
		r.Transfer = tr
	}
	return r, nil
}

// FromDomain populates the model from a domain record
func (m *ClientRecordModel) FromDomain(r *settlement.ClientRecord) error {
	m.ID = r.ID
	m.Name = r.Name
	m.Email = r.Email
	m.PaymentMethod = string(r.PaymentMethod)
	m.SessionID = r.SessionID
	m.PaymentIntentID = r.PaymentIntentID
	m.AmountCents = r.AmountCents
	m.Currency = r.Currency
	m.PaymentStatus = r.PaymentStatus
	m.DestinationAccount = r.DestinationAccount
	m.DestinationAmountCents = r.DestinationAmountCents
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt

	if r.QuoteInput != nil {
		raw, err := json.Marshal(r.QuoteInput)
		if err != nil {
			return fmt.Errorf("encode quote input: %w", err)
		}
		m.QuoteInput = string(raw)
	}
	if tr := r.Transfer; tr != nil {
		transferredAt := tr.TransferredAt
		m.TransferID = tr.TransferID
		m.TransferDestination = tr.DestinationAccount
		m.TransferAmountCents = tr.AmountCents
		m.TransferCurrency = tr.Currency
		m.TransferSourceTransaction = tr.SourceTransaction
		m.TransferIdempotencyKey = tr.IdempotencyKey
		m.TransferredAt = &transferredAt
		m.TransferStatus = string(tr.Status)
	}
	return nil
}

// TransferColumns returns the column values that record a transfer
func TransferColumns(tr *settlement.TransferRecord) map[string]any {
	return map[string]any{
		"transfer_id":                 tr.TransferID,
		"transfer_destination":        tr.DestinationAccount,
		"transfer_amount_cents":       tr.AmountCents,
		"transfer_currency":           tr.Currency,
		"transfer_source_transaction": tr.SourceTransaction,
		"transfer_idempotency_key":    tr.IdempotencyKey,
		"transferred_at":              tr.TransferredAt,
		"transfer_status":             string(tr.Status),
	}
}
