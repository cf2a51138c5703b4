package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shipfunnel/backend/internal/interfaces/http/dto"
)

// BodyLimitConfig caps request bodies. Routes are matched on the gin route
// pattern, so the webhook can accept Stripe's larger event payloads while
// funnel forms keep the smaller default.
type BodyLimitConfig struct {
	Default int64
	Routes  map[string]int64
}

// BodyLimit applies a single limit to every route
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return BodyLimitWithConfig(BodyLimitConfig{Default: maxBytes})
}

// BodyLimitWithConfig rejects requests whose declared length exceeds the
// route's limit and caps streamed bodies at the same size
func BodyLimitWithConfig(cfg BodyLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := cfg.Default
		if routeLimit, ok := cfg.Routes[c.FullPath()]; ok {
			limit = routeLimit
		}
		if limit <= 0 {
			c.Next()
			return
		}

		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
				c.GetString(RequestIDKey),
			))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
