package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CacheStatus reports which cache backend is active
type CacheStatus interface {
	Backend() string
}

// HealthHandler reports liveness and the state of the in-process components
type HealthHandler struct {
	cache      CacheStatus
	queueDepth func() int
	started    time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(cache CacheStatus, queueDepth func() int) *HealthHandler {
	return &HealthHandler{
		cache:      cache,
		queueDepth: queueDepth,
		started:    time.Now(),
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Cache      string `json:"cache"`
	QueueDepth int    `json:"queueDepth"`
	Uptime     string `json:"uptime"`
}

// degradable is implemented by remote caches that track failed round-trips
type degradable interface {
	Degraded() bool
}

// Health always answers 200 while the process serves requests. A remote cache
// that is failing reports "degraded" since limits and dedup then fail open.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	if d, ok := h.cache.(degradable); ok && d.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:     status,
		Cache:      h.cache.Backend(),
		QueueDepth: h.queueDepth(),
		Uptime:     time.Since(h.started).Truncate(time.Second).String(),
	})
}
