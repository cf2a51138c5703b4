// Package notification defines customer-facing messages and the port that delivers them.
package notification

import "context"

// Receipt is a payment confirmation addressed to a customer
type Receipt struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Notifier delivers receipts. Implementations may fail transiently; callers retry.
type Notifier interface {
	SendReceipt(ctx context.Context, receipt Receipt) error
}
