package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shipfunnel/backend/internal/application/webhook"
	"github.com/shipfunnel/backend/internal/infrastructure/cache"
	"github.com/shipfunnel/backend/internal/interfaces/http/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouter_Setup(t *testing.T) {
	t.Run("mounts groups at the root by default", func(t *testing.T) {
		engine := gin.New()
		group := NewDomainGroup("ping", "/ping").GET("", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		NewRouter(engine).Register(group).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "pong", w.Body.String())
	})

	t.Run("honours a base path", func(t *testing.T) {
		engine := gin.New()
		group := NewDomainGroup("ping", "/ping").GET("", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		NewRouter(engine, WithBasePath("/api")).Register(group).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("applies group middleware", func(t *testing.T) {
		engine := gin.New()
		group := NewDomainGroup("admin", "/admin").
			Use(func(c *gin.Context) {
				c.Header("X-Group", "admin")
				c.Next()
			}).
			GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		NewRouter(engine).Register(group).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
		assert.Equal(t, "admin", w.Header().Get("X-Group"))
	})
}

func TestDomainGroup_Operator(t *testing.T) {
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }

	t.Run("guard runs only before operator routes", func(t *testing.T) {
		engine := gin.New()
		group := NewDomainGroup("ops", "/ops").Guard(deny).
			GET("/open", ok).
			Operator(http.MethodGet, "/closed", ok)
		NewRouter(engine).Register(group).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ops/open", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ops/closed", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		assert.Equal(t, []RouteInfo{
			{Method: http.MethodGet, Path: "/ops/open"},
			{Method: http.MethodGet, Path: "/ops/closed", Operator: true},
		}, group.Routes())
	})

	t.Run("nil guard leaves operator routes open", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine).Register(NewDomainGroup("ops", "/ops").Operator(http.MethodGet, "/closed", ok)).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ops/closed", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRouter_SetupLogsRoutes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	group := NewDomainGroup("ping", "/ping").GET("", func(c *gin.Context) {})
	NewRouter(gin.New(), WithBasePath("/api"), WithLogger(zap.New(core))).Register(group).Setup()

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/api/ping", logs.All()[0].ContextMap()["path"])
}

type emptyEvents struct{}

func (emptyEvents) Events() *webhook.EventLog { return webhook.NewEventLog(1) }
func (emptyEvents) QueueDepth() int           { return 0 }

func TestFunnelGroups_Routes(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).Register(FunnelGroups(Handlers{
		Webhook:    handler.NewWebhookHandler(nil, 0),
		Settlement: handler.NewSettlementHandler(nil),
		Quote:      handler.NewQuoteHandler(nil),
		Checkout:   handler.NewCheckoutHandler(nil),
		Admin:      handler.NewAdminHandler(emptyEvents{}),
		Health:     handler.NewHealthHandler(cache.NewMemoryCache(), func() int { return 0 }),
	})...).Setup()

	registered := map[string]bool{}
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /stripe/webhook",
		"POST /payments/checkout-session",
		"POST /payments/process-transfer",
		"GET /payments/transfer-status/:clientId",
		"GET /payments/transfer-config",
		"PUT /payments/transfer-config",
		"POST /payments/process-pending-transfers",
		"POST /quote",
		"GET /admin/webhook-events",
		"GET /health",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestFunnelGroups_OperatorAuth(t *testing.T) {
	engine := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	NewRouter(engine).Register(FunnelGroups(Handlers{
		Webhook:      handler.NewWebhookHandler(nil, 0),
		Settlement:   handler.NewSettlementHandler(nil),
		Quote:        handler.NewQuoteHandler(nil),
		Checkout:     handler.NewCheckoutHandler(nil),
		Admin:        handler.NewAdminHandler(emptyEvents{}),
		Health:       handler.NewHealthHandler(cache.NewMemoryCache(), func() int { return 0 }),
		OperatorAuth: deny,
	})...).Setup()

	for _, tt := range []struct {
		method, path string
		guarded      bool
	}{
		{http.MethodGet, "/admin/webhook-events", true},
		{http.MethodGet, "/payments/transfer-config", true},
		{http.MethodPut, "/payments/transfer-config", true},
		{http.MethodPost, "/payments/process-pending-transfers", true},
		{http.MethodGet, "/health", false},
	} {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if tt.guarded {
				assert.Equal(t, http.StatusUnauthorized, w.Code)
			} else {
				assert.NotEqual(t, http.StatusUnauthorized, w.Code)
			}
		})
	}
}
