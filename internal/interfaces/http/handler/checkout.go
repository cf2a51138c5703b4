package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/shipfunnel/backend/internal/application/checkout"
	"github.com/shipfunnel/backend/internal/interfaces/http/dto"
)

// CheckoutStarter opens checkout sessions
type CheckoutStarter interface {
	Start(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// CheckoutHandler starts the payment step of the funnel
type CheckoutHandler struct {
	BaseHandler
	checkout CheckoutStarter
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(starter CheckoutStarter) *CheckoutHandler {
	return &CheckoutHandler{checkout: starter}
}

// CreateSession quotes the order and returns the hosted checkout URL
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	var req dto.CheckoutSessionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.checkout.Start(c.Request.Context(), checkout.Request{
		Name:               req.Name,
		Email:              req.Email,
		DestinationAccount: req.DestinationAccount,
		Quote:              req.Quote,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.CheckoutSessionResponse{
		ClientID:  res.ClientID,
		SessionID: res.SessionID,
		URL:       res.URL,
		Quote:     res.Quote,
	})
}
