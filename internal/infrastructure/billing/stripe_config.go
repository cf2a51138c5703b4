package billing

import (
	"fmt"
	"strings"

	"github.com/shipfunnel/backend/internal/infrastructure/config"
)

// StripeConfig holds configuration for the Stripe gateway
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx, sk_live_xxx or a restricted rk_ key)
	SecretKey string

	// Currency is the ISO currency for checkout and transfers (e.g., "usd")
	Currency string

	// SuccessURL is the URL to redirect after successful checkout
	SuccessURL string

	// CancelURL is the URL to redirect after cancelled checkout
	CancelURL string
}

// NewStripeConfig builds a StripeConfig from application configuration
func NewStripeConfig(cfg config.StripeConfig) *StripeConfig {
	return &StripeConfig{
		SecretKey:  cfg.SecretKey,
		Currency:   strings.ToLower(cfg.Currency),
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
	}
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if !strings.HasPrefix(c.SecretKey, "sk_") && !strings.HasPrefix(c.SecretKey, "rk_") {
		return fmt.Errorf("stripe: secret key must start with sk_ or rk_")
	}
	if c.Currency == "" {
		return fmt.Errorf("stripe: currency is required")
	}
	return nil
}

// IsTestMode reports whether the key targets Stripe test mode
func (c *StripeConfig) IsTestMode() bool {
	return strings.Contains(c.SecretKey, "_test_")
}
