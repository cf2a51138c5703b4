package cache

import (
	"fmt"

	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Factory creates the process-wide cache based on configuration.
// The backend is chosen once at startup and never reselected while running.
type Factory struct {
	cfg                   config.CacheConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether a configured but unreachable Redis may be replaced
// by the memory backend at startup
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.CacheConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg:                   cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: cfg.AllowMemoryFallback,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// RemoteConfigured reports whether configuration asks for the Redis backend
func (f *Factory) RemoteConfigured() bool {
	return f.cfg.RedisURL != "" || f.cfg.RedisHost != ""
}

// Create returns the cache for this process and logs the chosen backend once
func (f *Factory) Create() (shared.Cache, error) {
	if !f.RemoteConfigured() {
		f.logger.Info("Using memory cache backend",
			zap.String("reason", "no redis configured"))
		return NewMemoryCache(), nil
	}

	store, err := NewRedisCache(RedisConfig{
		URL:       f.cfg.RedisURL,
		Host:      f.cfg.RedisHost,
		Port:      f.cfg.RedisPort,
		Password:  f.cfg.RedisPassword,
		DB:        f.cfg.RedisDB,
		KeyPrefix: f.cfg.KeyPrefix,
	}, f.logger.Named("cache"))
	if err == nil {
		f.logger.Info("Using remote cache backend")
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis configured but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to memory cache backend. "+
		"Rate-limit counters and dedup markers will not be shared across instances.",
		zap.Error(err),
	)
	return NewMemoryCache(), nil
}
