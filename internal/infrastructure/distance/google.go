package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/domain/quote"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/config"
)

const (
	maxResponseSize = 1 << 20
	metersPerMile   = 1609.344
)

// GoogleMatrix resolves distances through the Google Distance Matrix API
type GoogleMatrix struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ quote.DistanceLookup = (*GoogleMatrix)(nil)

// NewGoogleMatrix creates a distance client
func NewGoogleMatrix(cfg config.DistanceConfig, logger *zap.Logger) *GoogleMatrix {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GoogleMatrix{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int64 `json:"value"` // meters
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

// Miles returns the driving distance from origin to destination in miles
func (g *GoogleMatrix) Miles(ctx context.Context, origin, destination string) (decimal.Decimal, error) {
	if g.apiKey == "" {
		return decimal.Zero, shared.NewUnavailableError("distance lookup is not configured")
	}

	params := url.Values{}
	params.Set("origins", origin)
	params.Set("destinations", destination)
	params.Set("units", "imperial")
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("distance: failed to create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Warn("Distance lookup failed", zap.Error(err))
		return decimal.Zero, shared.NewUnavailableError("distance provider unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return decimal.Zero, fmt.Errorf("distance: failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		g.logger.Warn("Distance provider returned an error", zap.Int("status", resp.StatusCode))
		return decimal.Zero, shared.NewUpstreamError("distance provider returned HTTP %d", resp.StatusCode)
	}

	var parsed matrixResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, shared.NewUpstreamError("distance provider returned an unreadable response")
	}
	if parsed.Status != "OK" {
		g.logger.Warn("Distance request rejected",
			zap.String("status", parsed.Status),
			zap.String("message", parsed.ErrorMessage))
		return decimal.Zero, shared.NewUpstreamError("distance provider rejected the request: %s", parsed.Status)
	}
	if len(parsed.Rows) == 0 || len(parsed.Rows[0].Elements) == 0 {
		return decimal.Zero, shared.NewUpstreamError("distance provider returned no route")
	}

	element := parsed.Rows[0].Elements[0]
	switch element.Status {
	case "OK":
	case "NOT_FOUND", "ZERO_RESULTS":
		return decimal.Zero, shared.NewValidationError("pickup address could not be routed").
			WithDetails(map[string]any{"field": "pickupAddress"})
	default:
		return decimal.Zero, shared.NewUpstreamError("distance provider returned element status %s", element.Status)
	}

	miles := decimal.NewFromInt(element.Distance.Value).Div(decimal.NewFromFloat(metersPerMile))
	return miles.Round(2), nil
}
