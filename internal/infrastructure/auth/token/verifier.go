// Package token verifies HS256 bearer tokens and exposes the authenticated
// identity to HTTP handlers.
package token

import (
	"context"
	stdliberrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/config"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

var (
	ErrTokenMalformed        = errors.New(errors.ErrCodeUnauthorized, "malformed token")
	ErrTokenExpired          = errors.New(errors.ErrCodeUnauthorized, "token expired")
	ErrTokenInvalidSignature = errors.New(errors.ErrCodeUnauthorized, "invalid token signature")
	ErrTokenInvalidIssuer    = errors.New(errors.ErrCodeUnauthorized, "invalid token issuer")
	ErrTokenMissingSubject   = errors.New(errors.ErrCodeUnauthorized, "token has no subject")
)

// Verifier turns a raw bearer token into claims.
type Verifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*TokenClaims, error)
}

// TokenClaims is the identity carried by a verified token.
type TokenClaims struct {
	Subject   string    `json:"sub"`
	Username  string    `json:"preferred_username,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// HasRole reports whether the claims carry role.
func (c *TokenClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Username string   `json:"preferred_username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HS256Verifier validates tokens signed with a shared secret.
type HS256Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewHS256Verifier returns a verifier for secret. A non-empty issuer is
// enforced on every token.
func NewHS256Verifier(secret, issuer string) (*HS256Verifier, error) {
	if secret == "" {
		return nil, errors.New(errors.ErrCodeValidation, "jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &HS256Verifier{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}, nil
}

// NewVerifierFromConfig maps the auth config section onto a verifier.
func NewVerifierFromConfig(cfg config.AuthConfig) (*HS256Verifier, error) {
	return NewHS256Verifier(cfg.JWTSecret, cfg.Issuer)
}

func (v *HS256Verifier) VerifyToken(_ context.Context, rawToken string) (*TokenClaims, error) {
	var claims jwtClaims
	_, err := v.parser.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case stdliberrors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case stdliberrors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalidSignature
		case stdliberrors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrTokenInvalidIssuer
		case stdliberrors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		}
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "token verification failed")
	}
	if claims.Subject == "" {
		return nil, ErrTokenMissingSubject
	}

	out := &TokenClaims{
		Subject:  claims.Subject,
		Username: claims.Username,
		Roles:    claims.Roles,
		Issuer:   claims.Issuer,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Issue signs a token for subject. It is used by operators and tests; the
// service itself never hands out tokens.
func (v *HS256Verifier) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "sign token")
	}
	return signed, nil
}
