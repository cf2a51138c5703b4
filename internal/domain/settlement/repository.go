package settlement

import "context"

// ClientRecordStore persists client records. Lookups of unknown records
// return shared.ErrNotFound.
type ClientRecordStore interface {
	// Create persists a new record and assigns its ID when empty
	Create(ctx context.Context, record *ClientRecord) error

	// FindByID retrieves a record by its ID
	FindByID(ctx context.Context, id string) (*ClientRecord, error)

	// FindBySession retrieves the record paid through a checkout session
	FindBySession(ctx context.Context, sessionID string) (*ClientRecord, error)

	// FindByPaymentIntent retrieves the record paid through a payment intent
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*ClientRecord, error)

	// Update applies patch to the record with the given ID
	Update(ctx context.Context, id string, patch ClientPatch) error
	// FindManyPendingSettlement returns paid records with a positive destination
	// amount and no transfer, oldest first
	FindManyPendingSettlement(ctx context.Context, limit int) ([]*ClientRecord, error)
}
