package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
	"github.com/shipfunnel/backend/internal/interfaces/http/dto"
	"github.com/shipfunnel/backend/internal/interfaces/http/middleware"
)

// unavailableRetryAfter is sent with 503s so the funnel frontend backs off
// instead of hammering a provider that is down.
const unavailableRetryAfter = 5

// BaseHandler renders the API envelope for the funnel handlers
type BaseHandler struct{}

// getRequestID extracts the request ID set by the RequestID middleware
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// BindJSON binds the request body, writing a 400 response on failure
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// HandleError renders domain errors with their mapped status and details.
// A provider call that ran out of time is reported as unavailable; anything
// else becomes a 500 without leaking the cause. Server-side failures are
// logged with the cause through the request logger.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	domainErr, ok := shared.AsDomainError(err)
	if !ok && errors.Is(err, context.DeadlineExceeded) {
		domainErr, ok = shared.NewUnavailableError("upstream request timed out"), true
	}
	if !ok {
		logger.GetGinLogger(c).Error("Unhandled request error", zap.Error(err))
		h.InternalError(c, "An unexpected error occurred")
		return
	}

	code := dto.NormalizeErrorCode(domainErr.Code)
	status := dto.GetHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		logger.GetGinLogger(c).Warn("Request failed",
			zap.String("code", code),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(unavailableRetryAfter))
	}

	resp := dto.NewErrorResponseWithRequestID(code, domainErr.Message, getRequestID(c))
	resp.Error.Details = domainErr.Details
	c.JSON(status, resp)
}
