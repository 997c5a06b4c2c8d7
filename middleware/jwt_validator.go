package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/logger"
)

var (
	// ErrTokenExpired is returned when JWT validation fails due to expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for general token validation failures (signature, format).
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenMissingClaim is returned if a required claim (like 'sub') is missing.
	ErrTokenMissingClaim = errors.New("token missing required claim")
)

// Validator defines the interface for validating tokens.
type Validator interface {
	// Validate returns the subject claim of a valid token.
	Validate(tokenString string) (string, error)
}

// JWTValidator validates HS256-signed tokens against the shared API secret.
type JWTValidator struct {
	secret []byte
	skew   time.Duration
}

var _ Validator = (*JWTValidator)(nil)

// NewJWTValidator creates a validator instance using application configuration.
func NewJWTValidator(cfg *config.ServerConfig) (*JWTValidator, error) {
	if cfg.JwtSecretKey == "" {
		return nil, fmt.Errorf("jwt validator requires JWT_SECRET_KEY to be set")
	}
	logger.GetLogger().Infow("JWT validator initialized",
		"secret", logger.MaskSensitiveString(cfg.JwtSecretKey, 3, 0))
	return &JWTValidator{
		secret: []byte(cfg.JwtSecretKey),
		skew:   30 * time.Second,
	}, nil
}

// Validate parses and validates the token, returning the subject claim.
// Expired tokens yield ErrTokenExpired so callers can prompt a refresh;
// everything else collapses into ErrTokenInvalid.
func (v *JWTValidator) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return "", fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	sub := token.Subject()
	if sub == "" {
		return "", ErrTokenMissingClaim
	}
	return sub, nil
}
