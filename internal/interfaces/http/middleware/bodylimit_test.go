package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newBodyLimitRouter(mw gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(mw)
	echo := func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusBadRequest, "body too large")
			return
		}
		c.String(http.StatusOK, "%d", len(body))
	}
	router.POST("/quote", echo)
	router.POST("/stripe/webhook", echo)
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return router
}

func post(router *gin.Engine, path string, size int, declared bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Repeat("x", size)))
	if !declared {
		req.ContentLength = -1
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("allows a quote within the limit", func(t *testing.T) {
		w := post(newBodyLimitRouter(BodyLimit(1024)), "/quote", 10, true)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "10", w.Body.String())
	})

	t.Run("rejects a declared length over the limit", func(t *testing.T) {
		w := post(newBodyLimitRouter(BodyLimit(100)), "/quote", 200, true)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_REQUEST_TOO_LARGE")
	})

	t.Run("caps streamed bodies without Content-Length", func(t *testing.T) {
		w := post(newBodyLimitRouter(BodyLimit(50)), "/quote", 100, false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bodiless requests pass", func(t *testing.T) {
		w := httptest.NewRecorder()
		newBodyLimitRouter(BodyLimit(10)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestBodyLimitWithConfig_RouteOverride(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newBodyLimitRouter(BodyLimitWithConfig(BodyLimitConfig{
		Default: 100,
		Routes:  map[string]int64{"/stripe/webhook": 1000},
	}))

	assert.Equal(t, http.StatusOK, post(router, "/stripe/webhook", 500, true).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(router, "/quote", 500, true).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(router, "/stripe/webhook", 1500, true).Code)
}
