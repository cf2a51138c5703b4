package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webhookapp "github.com/shipfunnel/backend/internal/application/webhook"
	"github.com/shipfunnel/backend/internal/infrastructure/cache"
)

type staticEvents struct {
	log   *webhookapp.EventLog
	depth int
}

func (s staticEvents) Events() *webhookapp.EventLog { return s.log }
func (s staticEvents) QueueDepth() int              { return s.depth }

type degradedCache struct{}

func (degradedCache) Backend() string { return "remote" }
func (degradedCache) Degraded() bool  { return true }

func TestAdminHandler_WebhookEvents(t *testing.T) {
	log := webhookapp.NewEventLog(10)
	base := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"evt_1", "evt_2", "evt_3"} {
		log.Append(webhookapp.EventLogEntry{ID: id, Type: "checkout.session.completed", ReceivedAt: base.Add(time.Duration(i) * time.Second)})
	}

	r := newTestRouter()
	r.GET("/admin/webhook-events", NewAdminHandler(staticEvents{log: log, depth: 4}).WebhookEvents)

	t.Run("lists newest first", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/admin/webhook-events?limit=2", "")

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		events := data["events"].([]any)
		require.Len(t, events, 2)
		assert.Equal(t, "evt_3", events[0].(map[string]any)["id"])
		assert.Equal(t, float64(3), data["total"])
		assert.Equal(t, float64(4), data["queueDepth"])
	})

	t.Run("rejects a bad limit", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/admin/webhook-events?limit=-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthHandler_Health(t *testing.T) {
	t.Run("reports cache backend and queue depth", func(t *testing.T) {
		r := newTestRouter()
		r.GET("/health", NewHealthHandler(cache.NewMemoryCache(), func() int { return 2 }).Health)

		w := performRequest(r, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
		assert.Contains(t, w.Body.String(), `"cache":"memory"`)
		assert.Contains(t, w.Body.String(), `"queueDepth":2`)
	})

	t.Run("flags a failing remote cache", func(t *testing.T) {
		r := newTestRouter()
		r.GET("/health", NewHealthHandler(degradedCache{}, func() int { return 0 }).Health)

		w := performRequest(r, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	})
}
