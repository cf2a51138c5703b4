package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	settlementapp "github.com/shipfunnel/backend/internal/application/settlement"
	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/interfaces/http/dto"
)

// SettlementService settles paid orders and manages the dispatch policy
type SettlementService interface {
	Settle(ctx context.Context, req settlementapp.SettleRequest) (*settlement.TransferRecord, error)
	TransferStatus(ctx context.Context, clientID string) (*settlementapp.TransferStatusResponse, error)
	Config(ctx context.Context) (settlement.DispatchConfig, error)
	UpdateConfig(ctx context.Context, cfg settlement.DispatchConfig) (settlement.DispatchConfig, error)
	ProcessPending(ctx context.Context, req settlementapp.ProcessPendingRequest) (*settlementapp.ProcessPendingResult, error)
}

// SettlementHandler exposes transfer endpoints
type SettlementHandler struct {
	BaseHandler
	service SettlementService
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(service SettlementService) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// ProcessTransfer settles one paid order.
// Responds {success, transfer} or {error, code, details}.
func (h *SettlementHandler) ProcessTransfer(c *gin.Context) {
	var req dto.ProcessTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, settlementBindError(err))
		return
	}

	transfer, err := h.service.Settle(c.Request.Context(), settlementapp.SettleRequest{
		SessionID:       req.SessionID,
		ClientID:        req.ClientID,
		PaymentIntentID: req.PaymentIntentID,
	})
	if err != nil {
		_ = c.Error(err)
		status, body := settlementError(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, dto.NewProcessTransferResponse(transfer))
}

// TransferStatus reports whether a client's payment has been settled
func (h *SettlementHandler) TransferStatus(c *gin.Context) {
	status, err := h.service.TransferStatus(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// GetTransferConfig returns the active dispatch policy
func (h *SettlementHandler) GetTransferConfig(c *gin.Context) {
	cfg, err := h.service.Config(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// UpdateTransferConfig replaces the dispatch policy
func (h *SettlementHandler) UpdateTransferConfig(c *gin.Context) {
	var req dto.TransferConfigRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cfg, err := h.service.UpdateConfig(c.Request.Context(), req.ToDispatchConfig())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// ProcessPendingTransfers queues settlement for every eligible paid record.
// An empty body runs with defaults.
func (h *SettlementHandler) ProcessPendingTransfers(c *gin.Context) {
	var req dto.ProcessPendingTransfersRequest
	if c.Request.ContentLength != 0 {
		if !h.BindJSON(c, &req) {
			return
		}
	}

	result, err := h.service.ProcessPending(c.Request.Context(), settlementapp.ProcessPendingRequest{
		Force:  req.Force,
		DryRun: req.DryRun,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func settlementError(err error) (int, dto.SettlementError) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		return dto.GetHTTPStatus(code), dto.SettlementError{
			Error:   domainErr.Message,
			Code:    code,
			Details: domainErr.Details,
		}
	}
	return http.StatusInternalServerError, dto.SettlementError{
		Error: "Transfer processing failed",
		Code:  dto.ErrCodeInternal,
	}
}

func settlementBindError(err error) dto.SettlementError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return dto.SettlementError{Error: "Request body is not valid JSON", Code: dto.ErrCodeInvalidJSON}
	}
	missing := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		missing = append(missing, fe.Field())
	}
	return dto.SettlementError{
		Error:   "Missing required fields",
		Code:    dto.ErrCodeValidation,
		Details: map[string]any{"missing": missing},
	}
}
