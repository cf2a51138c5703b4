package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	webhookapp "github.com/shipfunnel/backend/internal/application/webhook"
)

const defaultEventLimit = 50

// EventSource exposes recently received webhook events
type EventSource interface {
	Events() *webhookapp.EventLog
	QueueDepth() int
}

// AdminHandler serves operator diagnostics
type AdminHandler struct {
	BaseHandler
	events EventSource
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(events EventSource) *AdminHandler {
	return &AdminHandler{events: events}
}

// WebhookEventsResponse lists recent deliveries, newest first
type WebhookEventsResponse struct {
	Events     []webhookapp.EventLogEntry `json:"events"`
	Total      int                        `json:"total"`
	QueueDepth int                        `json:"queueDepth"`
}

// WebhookEvents returns the newest entries of the webhook event log
func (h *AdminHandler) WebhookEvents(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	log := h.events.Events()
	h.Success(c, WebhookEventsResponse{
		Events:     log.Recent(limit),
		Total:      log.Len(),
		QueueDepth: h.events.QueueDepth(),
	})
}
