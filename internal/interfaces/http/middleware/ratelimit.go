package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shipfunnel/backend/internal/domain/shared"
	"github.com/shipfunnel/backend/internal/infrastructure/config"
	"github.com/shipfunnel/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// RateLimitRecorder receives a callback for every rejected request
type RateLimitRecorder interface {
	RateLimited(ctx context.Context, rule string)
}

type compiledRule struct {
	config.RateLimitRule
	re *regexp.Regexp
}

// RateLimiter counts requests per client in fixed windows stored in the shared cache,
// so every instance behind the same Redis enforces one budget.
type RateLimiter struct {
	cache    shared.Cache
	enabled  bool
	exempt   []string
	rules    []compiledRule
	fallback config.RateLimitRule
	recorder RateLimitRecorder
	logger   *zap.Logger
}

// NewRateLimiter compiles the configured rules. The first rule whose pattern matches the
// request path applies; requests matching none use the default rule.
func NewRateLimiter(cfg config.RateLimitConfig, cache shared.Cache, recorder RateLimitRecorder, logger *zap.Logger) (*RateLimiter, error) {
	rl := &RateLimiter{
		cache:    cache,
		enabled:  cfg.Enabled,
		exempt:   cfg.ExemptPrefixes,
		fallback: cfg.Default,
		recorder: recorder,
		logger:   logger,
	}
	if rl.fallback.Name == "" {
		rl.fallback.Name = "default"
	}
	for _, r := range cfg.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rate limit rule %q: %w", r.Name, err)
		}
		rl.rules = append(rl.rules, compiledRule{RateLimitRule: r, re: re})
	}
	return rl, nil
}

// Middleware returns the gin handler enforcing the limits
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !rl.enabled || rl.isExempt(path) {
			c.Next()
			return
		}

		rule := rl.match(path)
		if rule.Max <= 0 || rule.Window <= 0 {
			c.Next()
			return
		}

		key := "ratelimit:" + rule.Name + ":" + ClientID(c.Request)
		count, err := rl.cache.IncrementWithTTL(c.Request.Context(), key, rule.Window)
		if err != nil {
			rl.logger.Warn("Rate limit check failed, allowing request",
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
			c.Next()
			return
		}

		limit := int64(rule.Max)
		c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		if count > limit {
			if rl.recorder != nil {
				rl.recorder.RateLimited(c.Request.Context(), rule.Name)
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rule.Window.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests, please try again later",
				c.GetString(RequestIDKey),
			))
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(limit-count, 10))
		c.Next()
	}
}

func (rl *RateLimiter) isExempt(path string) bool {
	for _, prefix := range rl.exempt {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (rl *RateLimiter) match(path string) config.RateLimitRule {
	for _, r := range rl.rules {
		if r.re.MatchString(path) {
			return r.RateLimitRule
		}
	}
	return rl.fallback
}

// ClientID identifies the caller: the first X-Forwarded-For hop when present,
// otherwise the host part of the socket address.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if id := strings.TrimSpace(first); id != "" {
			return id
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
