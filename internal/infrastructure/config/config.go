package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Cache     CacheConfig
	Queue     QueueConfig
	RateLimit RateLimitConfig
	Stripe    StripeConfig
	Fees      FeeConfig
	Quote     QuoteConfig
	Transfer  TransferConfig
	Webhook   WebhookConfig
	Distance  DistanceConfig
	Notify    NotifyConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Admin     AdminConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
}

// CacheConfig selects and configures the shared cache backend.
// Redis is used when RedisURL or RedisHost is set; otherwise the memory backend.
type CacheConfig struct {
	RedisURL            string
	RedisHost           string
	RedisPort           int
	RedisPassword       string
	RedisDB             int
	KeyPrefix           string
	AllowMemoryFallback bool
}

// QueueConfig holds in-process job queue settings
type QueueConfig struct {
	Concurrency int
}

// RateLimitRule is one entry of the ordered rule list
type RateLimitRule struct {
	Name    string        `mapstructure:"name"`
	Pattern string        `mapstructure:"pattern"` // regular expression matched against the request path
	Window  time.Duration `mapstructure:"window"`
	Max     int           `mapstructure:"max"`
}

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	Enabled        bool
	ExemptPrefixes []string
	Rules          []RateLimitRule
	Default        RateLimitRule
}

// StripeConfig holds payment provider settings
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// FeeConfig holds fee split constants shared by quoting and settlement
type FeeConfig struct {
	StripePercent    float64
	StripeFixed      float64 // dollars
	PlatformRate     float64
	PlatformMinCents int64
}

// QuoteConfig holds pricing rules
type QuoteConfig struct {
	PricePerLb       float64
	MinCashAmount    float64
	CashRateOnline   float64
	CashRateAgency   float64
	PickupBaseFee    float64
	PickupPerMile    float64
	AgencyOrigin     string
	TimeZone         string
	DistanceCacheTTL time.Duration
	MinAddressLength int
}

// TransferConfig holds the default settlement dispatch policy
type TransferConfig struct {
	Mode            string // auto, manual, scheduled_weekly, scheduled_monthly, disabled
	MinAmountCents  map[string]int64
	WeeklyDay       string // weekday name for scheduled_weekly
	MonthlyDay      int    // day of month for scheduled_monthly
	BatchLimit      int
	InflightLockTTL time.Duration
	// In-process trigger for the scheduled modes
	ScheduleEnabled       bool
	ScheduleHour          int // local hour of day, 0-23
	ScheduleCheckInterval time.Duration
}

// WebhookConfig holds webhook processing settings
type WebhookConfig struct {
	DedupTTL           time.Duration
	ReceiptMaxAttempts int
	ReceiptBaseDelay   time.Duration
	ReceiptMaxDelay    time.Duration
	MaxPayloadBytes    int64
}

// DistanceConfig holds distance provider settings
type DistanceConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NotifyConfig holds receipt notification settings
type NotifyConfig struct {
	From       string
	AgencyName string
}

// DatabaseConfig holds the client record store connection settings
type DatabaseConfig struct {
	Driver   string // postgres or sqlite
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // sqlite file path
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	ServiceName       string
	CollectorEndpoint string
	SamplingRatio     float64
	Insecure          bool
	MetricsInterval   time.Duration
	// ExportLogs also ships zap entries to the collector
	ExportLogs bool
	// Continuous profiling, independent of Enabled
	ProfilingEnabled bool
	ProfilerAddress  string
}

// AdminConfig protects the operator endpoints. Empty JWTSecret leaves them open.
type AdminConfig struct {
	JWTSecret string
	Issuer    string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with FUNNEL_ prefix (e.g., FUNNEL_STRIPE_SECRET_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("FUNNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

// fromViper builds the config struct from an initialized viper instance
func fromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("cache.allow_memory_fallback", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.export_logs", true)
	v.SetDefault("transfer.schedule_enabled", true)
	v.SetDefault("transfer.schedule_hour", 2)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Cache: CacheConfig{
			RedisURL:            v.GetString("cache.redis_url"),
			RedisHost:           v.GetString("cache.redis_host"),
			RedisPort:           v.GetInt("cache.redis_port"),
			RedisPassword:       v.GetString("cache.redis_password"),
			RedisDB:             v.GetInt("cache.redis_db"),
			KeyPrefix:           v.GetString("cache.key_prefix"),
			AllowMemoryFallback: v.GetBool("cache.allow_memory_fallback"),
		},
		Queue: QueueConfig{
			Concurrency: v.GetInt("queue.concurrency"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        v.GetBool("ratelimit.enabled"),
			ExemptPrefixes: v.GetStringSlice("ratelimit.exempt_prefixes"),
			Default: RateLimitRule{
				Name:   "default",
				Window: v.GetDuration("ratelimit.default_window"),
				Max:    v.GetInt("ratelimit.default_max"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secret_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
			Currency:      v.GetString("stripe.currency"),
			SuccessURL:    v.GetString("stripe.success_url"),
			CancelURL:     v.GetString("stripe.cancel_url"),
		},
		Fees: FeeConfig{
			StripePercent:    v.GetFloat64("fees.stripe_percent"),
			StripeFixed:      v.GetFloat64("fees.stripe_fixed"),
			PlatformRate:     v.GetFloat64("fees.platform_rate"),
			PlatformMinCents: v.GetInt64("fees.platform_min_cents"),
		},
		Quote: QuoteConfig{
			PricePerLb:       v.GetFloat64("quote.price_per_lb"),
			MinCashAmount:    v.GetFloat64("quote.min_cash_amount"),
			CashRateOnline:   v.GetFloat64("quote.cash_rate_online"),
			CashRateAgency:   v.GetFloat64("quote.cash_rate_agency"),
			PickupBaseFee:    v.GetFloat64("quote.pickup_base_fee"),
			PickupPerMile:    v.GetFloat64("quote.pickup_per_mile"),
			AgencyOrigin:     v.GetString("quote.agency_origin"),
			TimeZone:         v.GetString("quote.time_zone"),
			DistanceCacheTTL: v.GetDuration("quote.distance_cache_ttl"),
			MinAddressLength: v.GetInt("quote.min_address_length"),
		},
		Transfer: TransferConfig{
			Mode:            v.GetString("transfer.mode"),
			WeeklyDay:       v.GetString("transfer.weekly_day"),
			MonthlyDay:      v.GetInt("transfer.monthly_day"),
			BatchLimit:      v.GetInt("transfer.batch_limit"),
			InflightLockTTL: v.GetDuration("transfer.inflight_lock_ttl"),

			ScheduleEnabled:       v.GetBool("transfer.schedule_enabled"),
			ScheduleHour:          v.GetInt("transfer.schedule_hour"),
			ScheduleCheckInterval: v.GetDuration("transfer.schedule_check_interval"),
		},
		Webhook: WebhookConfig{
			DedupTTL:           v.GetDuration("webhook.dedup_ttl"),
			ReceiptMaxAttempts: v.GetInt("webhook.receipt_max_attempts"),
			ReceiptBaseDelay:   v.GetDuration("webhook.receipt_base_delay"),
			ReceiptMaxDelay:    v.GetDuration("webhook.receipt_max_delay"),
			MaxPayloadBytes:    v.GetInt64("webhook.max_payload_bytes"),
		},
		Distance: DistanceConfig{
			APIKey:  v.GetString("distance.api_key"),
			BaseURL: v.GetString("distance.base_url"),
			Timeout: v.GetDuration("distance.timeout"),
		},
		Notify: NotifyConfig{
			From:       v.GetString("notify.from"),
			AgencyName: v.GetString("notify.agency_name"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("database.driver"),
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			Path:     v.GetString("database.path"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			ServiceName:       v.GetString("telemetry.service_name"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			ExportLogs:        v.GetBool("telemetry.export_logs"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilerAddress:   v.GetString("telemetry.profiler_address"),
		},
		Admin: AdminConfig{
			JWTSecret: v.GetString("admin.jwt_secret"),
			Issuer:    v.GetString("admin.issuer"),
		},
	}

	if err := v.UnmarshalKey("ratelimit.rules", &cfg.RateLimit.Rules); err != nil {
		return nil, fmt.Errorf("invalid ratelimit.rules: %w", err)
	}
	if err := v.UnmarshalKey("transfer.min_amount_cents", &cfg.Transfer.MinAmountCents); err != nil {
		return nil, fmt.Errorf("invalid transfer.min_amount_cents: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultRateLimitRules returns the rule list used when none is configured.
// Order matters: the first matching rule wins.
func DefaultRateLimitRules() []RateLimitRule {
	return []RateLimitRule{
		{Name: "webhook", Pattern: `^/stripe/webhook$`, Window: time.Minute, Max: 300},
		{Name: "payments", Pattern: `^/payments/`, Window: time.Minute, Max: 20},
		{Name: "quote", Pattern: `^/quote`, Window: time.Minute, Max: 60},
	}
}

// DefaultTransferMinimums returns the per-mode minimum transfer amounts in cents
func DefaultTransferMinimums() map[string]int64 {
	return map[string]int64{
		"auto":              100,
		"manual":            0,
		"scheduled_weekly":  2500,
		"scheduled_monthly": 5000,
		"disabled":          0,
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "shipfunnel-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.Cache.RedisHost != "" && cfg.Cache.RedisPort == 0 {
		cfg.Cache.RedisPort = 6379
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "funnel:"
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 2
	}
	if len(cfg.RateLimit.ExemptPrefixes) == 0 {
		cfg.RateLimit.ExemptPrefixes = []string{"/admin"}
	}
	if len(cfg.RateLimit.Rules) == 0 {
		cfg.RateLimit.Rules = DefaultRateLimitRules()
	}
	if cfg.RateLimit.Default.Window == 0 {
		cfg.RateLimit.Default.Window = time.Minute
	}
	if cfg.RateLimit.Default.Max == 0 {
		cfg.RateLimit.Default.Max = 100
	}
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = "usd"
	}
	if cfg.Fees.StripePercent == 0 {
		cfg.Fees.StripePercent = 0.029
	}
	if cfg.Fees.StripeFixed == 0 {
		cfg.Fees.StripeFixed = 0.30
	}
	if cfg.Fees.PlatformRate == 0 {
		cfg.Fees.PlatformRate = 0.023
	}
	if cfg.Fees.PlatformMinCents == 0 {
		cfg.Fees.PlatformMinCents = 110
	}
	if cfg.Quote.PricePerLb == 0 {
		cfg.Quote.PricePerLb = 3.50
	}
	if cfg.Quote.MinCashAmount == 0 {
		cfg.Quote.MinCashAmount = 20
	}
	if cfg.Quote.CashRateOnline == 0 {
		cfg.Quote.CashRateOnline = 0.089
	}
	if cfg.Quote.CashRateAgency == 0 {
		cfg.Quote.CashRateAgency = 0.10
	}
	if cfg.Quote.PickupBaseFee == 0 {
		cfg.Quote.PickupBaseFee = 10
	}
	if cfg.Quote.PickupPerMile == 0 {
		cfg.Quote.PickupPerMile = 0.75
	}
	if cfg.Quote.TimeZone == "" {
		cfg.Quote.TimeZone = "America/New_York"
	}
	if cfg.Quote.DistanceCacheTTL == 0 {
		cfg.Quote.DistanceCacheTTL = 15 * time.Minute
	}
	if cfg.Quote.MinAddressLength == 0 {
		cfg.Quote.MinAddressLength = 8
	}
	if cfg.Transfer.Mode == "" {
		cfg.Transfer.Mode = "auto"
	}
	if len(cfg.Transfer.MinAmountCents) == 0 {
		cfg.Transfer.MinAmountCents = DefaultTransferMinimums()
	}
	if cfg.Transfer.WeeklyDay == "" {
		cfg.Transfer.WeeklyDay = "friday"
	}
	if cfg.Transfer.MonthlyDay == 0 {
		cfg.Transfer.MonthlyDay = 1
	}
	if cfg.Transfer.BatchLimit == 0 {
		cfg.Transfer.BatchLimit = 100
	}
	if cfg.Transfer.InflightLockTTL == 0 {
		cfg.Transfer.InflightLockTTL = 2 * time.Minute
	}
	if cfg.Transfer.ScheduleCheckInterval == 0 {
		cfg.Transfer.ScheduleCheckInterval = time.Minute
	}
	if cfg.Webhook.DedupTTL == 0 {
		cfg.Webhook.DedupTTL = 72 * time.Hour
	}
	if cfg.Webhook.ReceiptMaxAttempts == 0 {
		cfg.Webhook.ReceiptMaxAttempts = 4
	}
	if cfg.Webhook.ReceiptBaseDelay == 0 {
		cfg.Webhook.ReceiptBaseDelay = time.Second
	}
	if cfg.Webhook.ReceiptMaxDelay == 0 {
		cfg.Webhook.ReceiptMaxDelay = 30 * time.Second
	}
	if cfg.Webhook.MaxPayloadBytes == 0 {
		cfg.Webhook.MaxPayloadBytes = 65536
	}
	if cfg.Distance.BaseURL == "" {
		cfg.Distance.BaseURL = "https://maps.googleapis.com/maps/api/distancematrix/json"
	}
	if cfg.Distance.Timeout == 0 {
		cfg.Distance.Timeout = 5 * time.Second
	}
	if cfg.Notify.From == "" {
		cfg.Notify.From = "receipts@shipfunnel.example"
	}
	if cfg.Notify.AgencyName == "" {
		cfg.Notify.AgencyName = "ShipFunnel"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "funnel.db"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Admin.Issuer == "" {
		cfg.Admin.Issuer = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Transfer.Mode {
	case "auto", "manual", "scheduled_weekly", "scheduled_monthly", "disabled":
	default:
		return fmt.Errorf("transfer.mode %q is not one of auto, manual, scheduled_weekly, scheduled_monthly, disabled", c.Transfer.Mode)
	}
	if c.Transfer.MonthlyDay < 1 || c.Transfer.MonthlyDay > 28 {
		return fmt.Errorf("transfer.monthly_day must be between 1 and 28, got %d", c.Transfer.MonthlyDay)
	}
	if c.Transfer.ScheduleHour < 0 || c.Transfer.ScheduleHour > 23 {
		return fmt.Errorf("transfer.schedule_hour must be between 0 and 23, got %d", c.Transfer.ScheduleHour)
	}
	for _, rule := range c.RateLimit.Rules {
		if rule.Name == "" || rule.Pattern == "" {
			return fmt.Errorf("ratelimit rule requires name and pattern")
		}
		if rule.Window <= 0 || rule.Max <= 0 {
			return fmt.Errorf("ratelimit rule %q requires positive window and max", rule.Name)
		}
	}
	if c.Fees.StripePercent < 0 || c.Fees.StripePercent >= 1 || c.Fees.PlatformRate < 0 || c.Fees.PlatformRate >= 1 {
		return fmt.Errorf("fee percentages must be within [0, 1)")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilerAddress == "" {
		return fmt.Errorf("telemetry.profiler_address is required when profiling is enabled")
	}
	if c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < 32 {
		return fmt.Errorf("admin.jwt_secret must be at least 32 characters")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Stripe.SecretKey == "" {
			return fmt.Errorf("stripe.secret_key is required in production")
		}
		if c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("stripe.webhook_secret is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
