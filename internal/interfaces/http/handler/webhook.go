package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	webhookapp "github.com/shipfunnel/backend/internal/application/webhook"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
	"github.com/shipfunnel/backend/internal/interfaces/http/dto"
)

// DefaultMaxWebhookPayload bounds webhook bodies when no limit is configured
const DefaultMaxWebhookPayload = 65536

// WebhookProcessor verifies and schedules provider events
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*webhookapp.WebhookResult, error)
}

// WebhookHandler receives Stripe webhook deliveries.
// The endpoint is authenticated by the payload signature only.
type WebhookHandler struct {
	BaseHandler
	processor  WebhookProcessor
	maxPayload int64
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(processor WebhookProcessor, maxPayload int64) *WebhookHandler {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxWebhookPayload
	}
	return &WebhookHandler{
		processor:  processor,
		maxPayload: maxPayload,
	}
}

// HandleStripeWebhook acknowledges an event once it is verified and queued.
// Fulfillment runs after the response, so slow receipts or transfers never
// hold the delivery open.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Signature verification needs the exact bytes Stripe sent
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxPayload+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if int64(len(payload)) > h.maxPayload {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Payload too large")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidSignature, "Missing Stripe-Signature header")
		return
	}

	result, err := h.processor.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, webhookapp.ErrInvalidSignature) {
			logger.GetGinLogger(c).Warn("Webhook signature verification failed", zap.Error(err))
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidSignature, "Webhook signature verification failed")
			return
		}
		logger.GetGinLogger(c).Error("Webhook processing failed", zap.Error(err))
		h.InternalError(c, "Webhook processing failed")
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		Duplicate: result.Duplicate,
	})
}
