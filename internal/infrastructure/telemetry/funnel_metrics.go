package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const transferAmountInstrument = "funnel.settlement.transfer_size"

// FunnelMetrics records business counters. A nil *FunnelMetrics is a no-op.
type FunnelMetrics struct {
	webhookEvents      metric.Int64Counter
	transfers          metric.Int64Counter
	transferredCents   metric.Int64Counter
	transferSize       metric.Int64Histogram
	rateLimitRejects   metric.Int64Counter
	jobs               metric.Int64Counter
	queueDepthCallback metric.Registration
}

// NewFunnelMetrics creates the funnel instruments on meter. depth, when
// non-nil, is observed as the job queue depth gauge.
func NewFunnelMetrics(meter metric.Meter, depth func() int) (*FunnelMetrics, error) {
	m := &FunnelMetrics{}
	var err error

	if m.webhookEvents, err = meter.Int64Counter("funnel.webhook.events",
		metric.WithDescription("Stripe webhook deliveries by event type and outcome")); err != nil {
		return nil, fmt.Errorf("webhook events counter: %w", err)
	}
	if m.transfers, err = meter.Int64Counter("funnel.settlement.transfers",
		metric.WithDescription("Settlement attempts by outcome")); err != nil {
		return nil, fmt.Errorf("transfers counter: %w", err)
	}
	if m.transferredCents, err = meter.Int64Counter("funnel.settlement.transferred",
		metric.WithUnit("{cent}"),
		metric.WithDescription("Amount transferred to connected accounts")); err != nil {
		return nil, fmt.Errorf("transferred counter: %w", err)
	}
	if m.transferSize, err = meter.Int64Histogram(transferAmountInstrument,
		metric.WithUnit("{cent}"),
		metric.WithDescription("Size of completed transfers")); err != nil {
		return nil, fmt.Errorf("transfer size histogram: %w", err)
	}
	if m.rateLimitRejects, err = meter.Int64Counter("funnel.ratelimit.rejections",
		metric.WithDescription("Requests rejected by the rate limiter by rule")); err != nil {
		return nil, fmt.Errorf("rate limit counter: %w", err)
	}
	if m.jobs, err = meter.Int64Counter("funnel.jobqueue.jobs",
		metric.WithDescription("Finished background jobs by name and outcome")); err != nil {
		return nil, fmt.Errorf("jobs counter: %w", err)
	}

	if depth != nil {
		gauge, err := meter.Int64ObservableGauge("funnel.jobqueue.depth",
			metric.WithDescription("Queued plus in-flight jobs"))
		if err != nil {
			return nil, fmt.Errorf("queue depth gauge: %w", err)
		}
		m.queueDepthCallback, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(gauge, int64(depth()))
			return nil
		}, gauge)
		if err != nil {
			return nil, fmt.Errorf("queue depth callback: %w", err)
		}
	}

	return m, nil
}

// WebhookEvent counts one webhook delivery
func (m *FunnelMetrics) WebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}

// Transfer counts one settlement attempt and, on success, its amount
func (m *FunnelMetrics) Transfer(ctx context.Context, outcome string, amountCents int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.transfers.Add(ctx, 1, attrs)
	if amountCents > 0 {
		m.transferredCents.Add(ctx, amountCents, attrs)
		m.transferSize.Record(ctx, amountCents)
	}
}

// RateLimited counts one rejected request
func (m *FunnelMetrics) RateLimited(ctx context.Context, rule string) {
	if m == nil {
		return
	}
	m.rateLimitRejects.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}

// JobFinished counts one finished background job
func (m *FunnelMetrics) JobFinished(ctx context.Context, name string, failed bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.jobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", name),
		attribute.String("outcome", outcome),
	))
}

// Close unregisters the queue depth callback
func (m *FunnelMetrics) Close() error {
	if m == nil || m.queueDepthCallback == nil {
		return nil
	}
	return m.queueDepthCallback.Unregister()
}
