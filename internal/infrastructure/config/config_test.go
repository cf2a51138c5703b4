package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "shipfunnel-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, 2, cfg.Queue.Concurrency)
		assert.True(t, cfg.RateLimit.Enabled)
		assert.Equal(t, []string{"/admin"}, cfg.RateLimit.ExemptPrefixes)
		assert.Equal(t, 100, cfg.RateLimit.Default.Max)
		assert.Equal(t, time.Minute, cfg.RateLimit.Default.Window)
		assert.Equal(t, 0.029, cfg.Fees.StripePercent)
		assert.Equal(t, 0.30, cfg.Fees.StripeFixed)
		assert.Equal(t, 0.023, cfg.Fees.PlatformRate)
		assert.Equal(t, int64(110), cfg.Fees.PlatformMinCents)
		assert.Equal(t, 3.50, cfg.Quote.PricePerLb)
		assert.Equal(t, 20.0, cfg.Quote.MinCashAmount)
		assert.Equal(t, "auto", cfg.Transfer.Mode)
		assert.True(t, cfg.Transfer.ScheduleEnabled)
		assert.Equal(t, 2, cfg.Transfer.ScheduleHour)
		assert.Equal(t, time.Minute, cfg.Transfer.ScheduleCheckInterval)
		assert.Equal(t, 4, cfg.Webhook.ReceiptMaxAttempts)
		assert.Equal(t, 30*time.Second, cfg.Webhook.ReceiptMaxDelay)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Empty(t, cfg.Cache.RedisURL)
		assert.True(t, cfg.Telemetry.ExportLogs)
		assert.False(t, cfg.Telemetry.ProfilingEnabled)
		assert.Empty(t, cfg.Admin.JWTSecret)
		assert.Equal(t, "shipfunnel-backend", cfg.Admin.Issuer)
	})

	t.Run("loads values from environment variables", func(t *testing.T) {
		t.Setenv("FUNNEL_APP_PORT", "9090")
		t.Setenv("FUNNEL_QUEUE_CONCURRENCY", "5")
		t.Setenv("FUNNEL_CACHE_REDIS_URL", "redis://cache:6379/1")
		t.Setenv("FUNNEL_RATELIMIT_ENABLED", "false")
		t.Setenv("FUNNEL_TRANSFER_MODE", "manual")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.App.Port)
		assert.Equal(t, 5, cfg.Queue.Concurrency)
		assert.Equal(t, "redis://cache:6379/1", cfg.Cache.RedisURL)
		assert.False(t, cfg.RateLimit.Enabled)
		assert.Equal(t, "manual", cfg.Transfer.Mode)
	})
}

func TestFromViper_RateLimitRules(t *testing.T) {
	t.Run("uses default rule order when none configured", func(t *testing.T) {
		cfg, err := fromViper(viper.New())
		require.NoError(t, err)

		require.Len(t, cfg.RateLimit.Rules, 3)
		assert.Equal(t, "webhook", cfg.RateLimit.Rules[0].Name)
		assert.Equal(t, "payments", cfg.RateLimit.Rules[1].Name)
		assert.Equal(t, 20, cfg.RateLimit.Rules[1].Max)
	})

	t.Run("decodes configured rules", func(t *testing.T) {
		v := viper.New()
		v.Set("ratelimit.rules", []map[string]any{
			{"name": "quote", "pattern": "^/quote", "window": "30s", "max": 5},
		})

		cfg, err := fromViper(v)
		require.NoError(t, err)

		require.Len(t, cfg.RateLimit.Rules, 1)
		assert.Equal(t, RateLimitRule{Name: "quote", Pattern: "^/quote", Window: 30 * time.Second, Max: 5}, cfg.RateLimit.Rules[0])
	})

	t.Run("rejects a rule without a window", func(t *testing.T) {
		v := viper.New()
		v.Set("ratelimit.rules", []map[string]any{
			{"name": "broken", "pattern": "^/x", "max": 5},
		})

		_, err := fromViper(v)
		assert.Error(t, err)
	})
}

func TestFromViper_Validation(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr string
	}{
		{
			name:    "unknown transfer mode",
			values:  map[string]any{"transfer.mode": "hourly"},
			wantErr: "transfer.mode",
		},
		{
			name:    "production without stripe secret",
			values:  map[string]any{"app.env": "production", "stripe.webhook_secret": "whsec_x"},
			wantErr: "stripe.secret_key",
		},
		{
			name:    "production without webhook secret",
			values:  map[string]any{"app.env": "production", "stripe.secret_key": "sk_live_x"},
			wantErr: "stripe.webhook_secret",
		},
		{
			name:    "schedule hour out of range",
			values:  map[string]any{"transfer.schedule_hour": 24},
			wantErr: "transfer.schedule_hour",
		},
		{
			name:    "unsupported database driver",
			values:  map[string]any{"database.driver": "mysql"},
			wantErr: "database.driver",
		},
		{
			name:    "profiling without an address",
			values:  map[string]any{"telemetry.profiling_enabled": true},
			wantErr: "telemetry.profiler_address",
		},
		{
			name:    "short admin secret",
			values:  map[string]any{"admin.jwt_secret": "short"},
			wantErr: "admin.jwt_secret",
		},
		{
			name:    "platform rate out of range",
			values:  map[string]any{"fees.platform_rate": 1.5},
			wantErr: "fee percentages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.values {
				v.Set(k, val)
			}

			_, err := fromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("valid production config", func(t *testing.T) {
		v := viper.New()
		v.Set("app.env", "production")
		v.Set("stripe.secret_key", "sk_live_x")
		v.Set("stripe.webhook_secret", "whsec_x")

		cfg, err := fromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "funnel",
		Password: "p@ss word",
		DBName:   "funnel",
		SSLMode:  "require",
	}

	assert.Equal(t, "postgres://funnel:p%40ss%20word@db:5432/funnel?sslmode=require", cfg.DSN())
}
