package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/notification"
	"github.com/shipfunnel/backend/internal/domain/shared"
)

// LogNotifier writes receipts to the application log instead of delivering them.
// It is the default notifier until a mail provider is configured.
type LogNotifier struct {
	from   string
	logger *zap.Logger
}

var _ notification.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier that logs each receipt
func NewLogNotifier(from string, logger *zap.Logger) *LogNotifier {
	return &LogNotifier{from: from, logger: logger}
}

// SendReceipt logs the receipt envelope
func (n *LogNotifier) SendReceipt(ctx context.Context, receipt notification.Receipt) error {
	if receipt.To == "" {
		return shared.NewValidationError("receipt has no recipient")
	}
	n.logger.Info("Receipt sent",
		zap.String("from", n.from),
		zap.String("to", receipt.To),
		zap.String("subject", receipt.Subject),
		zap.Int("text_bytes", len(receipt.Text)),
	)
	return nil
}
