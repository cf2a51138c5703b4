package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/persistence/models"
)

// GormClientRecordStore implements settlement.ClientRecordStore using GORM
type GormClientRecordStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ settlement.ClientRecordStore = (*GormClientRecordStore)(nil)

// NewGormClientRecordStore creates a new client record store
func NewGormClientRecordStore(db *gorm.DB) *GormClientRecordStore {
	return &GormClientRecordStore{db: db, now: time.Now}
}

// Create persists a new record
func (s *GormClientRecordStore) Create(ctx context.Context, record *settlement.ClientRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := s.now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	var model models.ClientRecordModel
	if err := model.FromDomain(record); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create client record: %w", err)
	}
	return nil
}

// FindByID retrieves a record by its ID
func (s *GormClientRecordStore) FindByID(ctx context.Context, id string) (*settlement.ClientRecord, error) {
	return s.findOne(ctx, "id = ?", id)
}

// FindBySession retrieves the record paid through a checkout session
func (s *GormClientRecordStore) FindBySession(ctx context.Context, sessionID string) (*settlement.ClientRecord, error) {
	if sessionID == "" {
		return nil, shared.ErrNotFound
	}
	return s.findOne(ctx, "session_id = ?", sessionID)
}

// FindByPaymentIntent retrieves the record paid through a payment intent
func (s *GormClientRecordStore) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*settlement.ClientRecord, error) {
	if paymentIntentID == "" {
		return nil, shared.ErrNotFound
	}
	return s.findOne(ctx, "payment_intent_id = ?", paymentIntentID)
}

func (s *GormClientRecordStore) findOne(ctx context.Context, query string, arg any) (*settlement.ClientRecord, error) {
	var model models.ClientRecordModel
	err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find client record: %w", err)
	}
	return model.ToDomain()
}

// Update applies patch to the record with the given ID. A patch carrying a
// transfer only applies while the record has none, so a settled record is
// never overwritten.
func (s *GormClientRecordStore) Update(ctx context.Context, id string, patch settlement.ClientPatch) error {
	updates := map[string]any{"updated_at": s.now().UTC()}
	if patch.SessionID != nil {
		updates["session_id"] = *patch.SessionID
	}
	if patch.PaymentIntentID != nil {
		updates["payment_intent_id"] = *patch.PaymentIntentID
	}
	if patch.AmountCents != nil {
		updates["amount_cents"] = *patch.AmountCents
	}
	if patch.Currency != nil {
		updates["currency"] = *patch.Currency
	}
	if patch.PaymentStatus != nil {
		updates["payment_status"] = *patch.PaymentStatus
	}
	if patch.DestinationAccount != nil {
		updates["destination_account"] = *patch.DestinationAccount
	}
	if patch.DestinationAmountCents != nil {
		updates["destination_amount_cents"] = *patch.DestinationAmountCents
	}
	if patch.QuoteInput != nil {
		var m models.ClientRecordModel
		if err := m.FromDomain(&settlement.ClientRecord{QuoteInput: patch.QuoteInput}); err != nil {
			return err
		}
		updates["quote_input"] = m.QuoteInput
	}

	q := s.db.WithContext(ctx).Model(&models.ClientRecordModel{}).Where("id = ?", id)
	if patch.Transfer != nil {
		for col, val := range models.TransferColumns(patch.Transfer) {
			updates[col] = val
		}
		q = q.Where("(transfer_id = '' OR transfer_id IS NULL)")
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update client record: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if patch.Transfer != nil && existing.HasTransfer() {
		return shared.NewConflictError("client %s already has transfer %s", id, existing.Transfer.TransferID).
			WithDetails(map[string]any{
				"transferId":    existing.Transfer.TransferID,
				"transferredAt": existing.Transfer.TransferredAt,
			})
	}
	return nil
}

// FindManyPendingSettlement returns paid, unsettled records with a positive
// destination amount. Abandoned checkouts never reach the batch.
func (s *GormClientRecordStore) FindManyPendingSettlement(ctx context.Context, limit int) ([]*settlement.ClientRecord, error) {
	var rows []models.ClientRecordModel
	err := s.db.WithContext(ctx).
		Where("payment_status = ?", settlement.PaymentStatusPaid).
		Where("destination_amount_cents > 0").
		Where("(transfer_id = '' OR transfer_id IS NULL)").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending settlements: %w", err)
	}

	records := make([]*settlement.ClientRecord, 0, len(rows))
	for i := range rows {
		r, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
