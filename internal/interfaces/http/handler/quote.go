package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/shipfunnel/backend/internal/domain/quote"
)

// QuoteCalculator prices quote requests
type QuoteCalculator interface {
	Calculate(ctx context.Context, in quote.Input) (*quote.Quote, error)
}

// QuoteHandler serves price quotes
type QuoteHandler struct {
	BaseHandler
	calculator QuoteCalculator
}

// NewQuoteHandler creates a new QuoteHandler
func NewQuoteHandler(calculator QuoteCalculator) *QuoteHandler {
	return &QuoteHandler{calculator: calculator}
}

// Quote prices a shipment or cash remittance
func (h *QuoteHandler) Quote(c *gin.Context) {
	var in quote.Input
	if !h.BindJSON(c, &in) {
		return
	}

	q, err := h.calculator.Calculate(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, q)
}
