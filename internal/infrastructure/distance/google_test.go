package distance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/config"
)

func newTestMatrix(t *testing.T, handler http.HandlerFunc) *GoogleMatrix {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGoogleMatrix(config.DistanceConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: time.Second,
	}, zap.NewNop())
}

func TestGoogleMatrix_Miles(t *testing.T) {
	t.Run("converts meters to miles", func(t *testing.T) {
		m := newTestMatrix(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Agency HQ", r.URL.Query().Get("origins"))
			assert.Equal(t, "place_id:abc", r.URL.Query().Get("destinations"))
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			_, _ = w.Write([]byte(`{"status":"OK","rows":[{"elements":[{"status":"OK","distance":{"value":19312}}]}]}`))
		})

		miles, err := m.Miles(context.Background(), "Agency HQ", "place_id:abc")
		require.NoError(t, err)
		assert.Equal(t, "12.00", miles.StringFixed(2))
	})

	t.Run("unroutable address is a validation error", func(t *testing.T) {
		m := newTestMatrix(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"OK","rows":[{"elements":[{"status":"NOT_FOUND"}]}]}`))
		})

		_, err := m.Miles(context.Background(), "a", "b")
		assert.True(t, shared.IsCode(err, shared.CodeValidation))
	})

	t.Run("request denied is an upstream error", func(t *testing.T) {
		m := newTestMatrix(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
		})

		_, err := m.Miles(context.Background(), "a", "b")
		assert.True(t, shared.IsCode(err, shared.CodeUpstream))
	})

	t.Run("http failure is an upstream error", func(t *testing.T) {
		m := newTestMatrix(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := m.Miles(context.Background(), "a", "b")
		assert.True(t, shared.IsCode(err, shared.CodeUpstream))
	})

	t.Run("missing api key", func(t *testing.T) {
		m := NewGoogleMatrix(config.DistanceConfig{}, zap.NewNop())

		_, err := m.Miles(context.Background(), "a", "b")
		assert.True(t, shared.IsCode(err, shared.CodeUnavailable))
	})
}
