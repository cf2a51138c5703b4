// Package auth issues and validates the bearer tokens that guard the
// operator endpoints (transfer policy, batch settlement, webhook event log).
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shipfunnel/backend/internal/infrastructure/config"
)

// ScopeOperator is the only scope the funnel knows
const ScopeOperator = "operator"

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidScope     = errors.New("token lacks the operator scope")
	ErrAuthDisabled     = errors.New("operator auth is not configured")
)

// Claims are the operator token claims
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// OperatorTokens signs and validates HS256 operator tokens
type OperatorTokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewOperatorTokens creates the token service. Nil when no secret is
// configured, which leaves the operator endpoints open.
func NewOperatorTokens(cfg config.AdminConfig) *OperatorTokens {
	if cfg.JWTSecret == "" {
		return nil
	}
	return &OperatorTokens{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// Issue signs a token for subject valid for ttl
func (s *OperatorTokens) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if s == nil {
		return "", time.Time{}, ErrAuthDisabled
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scope: ScopeOperator,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString and checks signature, issuer, audience, time
// window and scope
func (s *OperatorTokens) Validate(tokenString string) (*Claims, error) {
	if s == nil {
		return nil, ErrAuthDisabled
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != ScopeOperator {
		return nil, ErrInvalidScope
	}
	return claims, nil
}
