package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shipfunnel/backend/internal/interfaces/http/handler"
)

// Handlers are the endpoint handlers served by the funnel API
type Handlers struct {
	Webhook    *handler.WebhookHandler
	Settlement *handler.SettlementHandler
	Quote      *handler.QuoteHandler
	Checkout   *handler.CheckoutHandler
	Admin      *handler.AdminHandler
	Health     *handler.HealthHandler

	// OperatorAuth guards the operator endpoints; nil leaves them open
	OperatorAuth gin.HandlerFunc
}

// FunnelGroups returns the route groups of the payment funnel
func FunnelGroups(h Handlers) []RouteRegistrar {
	stripe := NewDomainGroup("stripe", "/stripe").
		POST("/webhook", h.Webhook.HandleStripeWebhook)

	payments := NewDomainGroup("payments", "/payments").
		Guard(h.OperatorAuth).
		POST("/checkout-session", h.Checkout.CreateSession).
		POST("/process-transfer", h.Settlement.ProcessTransfer).
		GET("/transfer-status/:clientId", h.Settlement.TransferStatus).
		Operator(http.MethodGet, "/transfer-config", h.Settlement.GetTransferConfig).
		Operator(http.MethodPut, "/transfer-config", h.Settlement.UpdateTransferConfig).
		Operator(http.MethodPost, "/process-pending-transfers", h.Settlement.ProcessPendingTransfers)

	quotes := NewDomainGroup("quote", "").
		POST("/quote", h.Quote.Quote)

	admin := NewDomainGroup("admin", "/admin").
		Guard(h.OperatorAuth).
		Operator(http.MethodGet, "/webhook-events", h.Admin.WebhookEvents)

	health := NewDomainGroup("health", "").
		GET("/health", h.Health.Health)

	return []RouteRegistrar{stripe, payments, quotes, admin, health}
}
