package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	appsettlement "github.com/shipfunnel/backend/internal/application/settlement"
	"github.com/shipfunnel/backend/internal/domain/notification"
	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/jobqueue"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
	"github.com/shipfunnel/backend/internal/infrastructure/retry"
	"github.com/shipfunnel/backend/internal/infrastructure/telemetry"
)

// ErrInvalidSignature is returned when a payload does not carry a valid provider signature
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// Event types
const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncSucceeded     = "checkout.session.async_payment_succeeded"
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventPaymentIntentFailed        = "payment_intent.payment_failed"
	EventChargeRefunded             = "charge.refunded"
)

const fulfillJobName = "fulfill-payment"

// Metric outcomes
const (
	outcomeQueued    = "queued"
	outcomeDuplicate = "duplicate"
	outcomeLogged    = "logged"
	outcomeIgnored   = "ignored"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// Settler settles a paid order
type Settler interface {
	Settle(ctx context.Context, req appsettlement.SettleRequest) (*settlement.TransferRecord, error)
}

// JobQueue schedules background work
type JobQueue interface {
	Enqueue(name string, fn jobqueue.Func, payload any) (string, error)
	Depth() int
}

// Processor verifies provider events, acknowledges them at once and hands the
// slow work to the job queue. Each event id is processed at most once within
// the dedup window.
type Processor struct {
	secret        string
	gateway       settlement.PaymentGateway
	store         settlement.ClientRecordStore
	notifier      notification.Notifier
	dedup         shared.DedupStore
	dedupTTL      time.Duration
	queue         JobQueue
	settler       Settler
	receiptPolicy retry.Policy
	agencyName    string
	events        *EventLog
	metrics       *telemetry.FunnelMetrics
	logger        *zap.Logger
	now           func() time.Time
}

// ProcessorConfig contains the dependencies of a Processor
type ProcessorConfig struct {
	WebhookSecret string
	Gateway       settlement.PaymentGateway
	Store         settlement.ClientRecordStore
	Notifier      notification.Notifier
	Dedup         shared.DedupStore
	DedupTTL      time.Duration
	Queue         JobQueue
	Settler       Settler
	ReceiptPolicy retry.Policy
	AgencyName    string
	EventLogSize  int
	Metrics       *telemetry.FunnelMetrics
	Logger        *zap.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		secret:        cfg.WebhookSecret,
		gateway:       cfg.Gateway,
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		dedup:         cfg.Dedup,
		dedupTTL:      cfg.DedupTTL,
		queue:         cfg.Queue,
		settler:       cfg.Settler,
		receiptPolicy: cfg.ReceiptPolicy,
		agencyName:    cfg.AgencyName,
		events:        NewEventLog(cfg.EventLogSize),
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           time.Now,
	}
	if p.dedupTTL == 0 {
		p.dedupTTL = shared.DefaultIdempotencyConfig().TTL
	}
	if p.receiptPolicy.OnRetry == nil {
		p.receiptPolicy.OnRetry = func(attempt int, err error, wait time.Duration) {
			p.logger.Warn("Receipt delivery failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(err))
		}
	}
	return p
}

// WebhookResult is the acknowledgement of one delivery
type WebhookResult struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Duplicate bool   `json:"duplicate"`
	Queued    bool   `json:"queued"`
	JobID     string `json:"jobId,omitempty"`
}

// fulfillment is the payload of a fulfill-payment job
type fulfillment struct {
	EventID         string
	EventType       string
	SessionID       string
	PaymentIntentID string
	ClientID        string
}

// Events returns the recent event log
func (p *Processor) Events() *EventLog {
	return p.events
}

// QueueDepth returns the number of queued and running jobs
func (p *Processor) QueueDepth() int {
	return p.queue.Depth()
}

// ProcessWebhook verifies and acknowledges one delivery
func (p *Processor) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	log := logger.FromContextOr(ctx, p.logger)

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warn("Rejected webhook with invalid signature", zap.Error(err))
		p.metrics.WebhookEvent(ctx, "unknown", outcomeRejected)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	ctx, log = logger.WithFields(ctx, log, zap.String("event_id", event.ID), zap.String("event_type", eventType))
	result := &WebhookResult{EventID: event.ID, EventType: eventType}

	entry := EventLogEntry{
		ID:         event.ID,
		Type:       eventType,
		Created:    time.Unix(event.Created, 0).UTC(),
		ObjectID:   objectID(event),
		ReceivedAt: p.now().UTC(),
	}

	dedupKey := "event:" + event.ID
	claimed, err := p.dedup.Claim(ctx, dedupKey, p.dedupTTL)
	if err != nil {
		log.Warn("Event dedup unavailable, processing anyway", zap.Error(err))
		claimed = true
	}
	if !claimed {
		entry.Duplicate = true
		p.events.Append(entry)
		result.Duplicate = true
		p.metrics.WebhookEvent(ctx, eventType, outcomeDuplicate)
		log.Info("Duplicate webhook event acknowledged")
		return result, nil
	}
	p.events.Append(entry)

	switch eventType {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded, EventPaymentIntentSucceeded:
		job, err := fulfillmentFor(event)
		if err == nil {
			result.JobID, err = p.queue.Enqueue(fulfillJobName, p.fulfillPayment, job)
		}
		if err != nil {
			// Let the provider redeliver
			if releaseErr := p.dedup.Release(ctx, dedupKey); releaseErr != nil {
				log.Warn("Failed to release event claim", zap.Error(releaseErr))
			}
			p.metrics.WebhookEvent(ctx, eventType, outcomeFailed)
			log.Error("Failed to queue webhook event", zap.Error(err))
			return nil, err
		}
		result.Queued = true
		p.metrics.WebhookEvent(ctx, eventType, outcomeQueued)
		log.Info("Webhook event queued", zap.String("job_id", result.JobID))

	case EventPaymentIntentFailed, EventChargeRefunded:
		p.metrics.WebhookEvent(ctx, eventType, outcomeLogged)
		log.Warn("Payment did not complete", zap.String("object_id", entry.ObjectID))

	default:
		p.metrics.WebhookEvent(ctx, eventType, outcomeIgnored)
		log.Info("Unhandled webhook event type")
	}

	return result, nil
}

func fulfillmentFor(event stripe.Event) (fulfillment, error) {
	job := fulfillment{EventID: event.ID, EventType: string(event.Type)}
	if event.Data == nil {
		return job, fmt.Errorf("event %s has no data", event.ID)
	}

	switch string(event.Type) {
	case EventPaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return job, fmt.Errorf("failed to unmarshal payment intent: %w", err)
		}
		job.PaymentIntentID = pi.ID
		job.ClientID = pi.Metadata["client_id"]
	default:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return job, fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		job.SessionID = session.ID
		if session.PaymentIntent != nil {
			job.PaymentIntentID = session.PaymentIntent.ID
		}
		job.ClientID = session.ClientReferenceID
		if job.ClientID == "" {
			job.ClientID = session.Metadata["client_id"]
		}
	}
	return job, nil
}

func objectID(event stripe.Event) string {
	if event.Data == nil || event.Data.Object == nil {
		return ""
	}
	id, _ := event.Data.Object["id"].(string)
	return id
}
