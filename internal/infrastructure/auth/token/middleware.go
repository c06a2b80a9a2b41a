package token

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

type contextKey string

const contextKeyClaims contextKey = "auth_claims"

var (
	ErrMissingAuthHeader = errors.New(errors.ErrCodeUnauthorized, "Authentication credentials were not provided.")
	ErrInvalidAuthFormat = errors.New(errors.ErrCodeUnauthorized, "invalid authorization format")
	ErrAccessDenied      = errors.Forbidden("You do not have permission to perform this action.")
)

// AuthMiddleware rejects requests without a valid bearer token and stores
// the verified identity in the request context.
type AuthMiddleware struct {
	verifier      Verifier
	logger        logging.Logger
	skipPaths     map[string]bool
	skipPrefixes  []string
	onAuthFailure func(w http.ResponseWriter, r *http.Request, err error)
}

// MiddlewareOption configures an AuthMiddleware.
type MiddlewareOption func(*AuthMiddleware)

// WithSkipPaths exempts exact paths from authentication.
func WithSkipPaths(paths ...string) MiddlewareOption {
	return func(m *AuthMiddleware) {
		for _, p := range paths {
			m.skipPaths[p] = true
		}
	}
}

// WithSkipPrefixes exempts every path under the given prefixes.
func WithSkipPrefixes(prefixes ...string) MiddlewareOption {
	return func(m *AuthMiddleware) {
		m.skipPrefixes = append(m.skipPrefixes, prefixes...)
	}
}

// WithAuthFailureHandler replaces the default 401 writer.
func WithAuthFailureHandler(handler func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *AuthMiddleware) {
		if handler != nil {
			m.onAuthFailure = handler
		}
	}
}

// NewAuthMiddleware creates an AuthMiddleware backed by verifier.
func NewAuthMiddleware(verifier Verifier, logger logging.Logger, opts ...MiddlewareOption) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := &AuthMiddleware{
		verifier:      verifier,
		logger:        logger.Named("auth"),
		skipPaths:     make(map[string]bool),
		onAuthFailure: writeAuthFailure,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r)
		if err != nil {
			m.handleError(w, r, err)
			return
		}
		claims, err := m.verifier.VerifyToken(r.Context(), raw)
		if err != nil {
			m.handleError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m *AuthMiddleware) skip(path string) bool {
	if m.skipPaths[path] {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *AuthMiddleware) handleError(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.Warn("authentication failed",
		logging.String("path", r.URL.Path),
		logging.String("ip", r.RemoteAddr),
		logging.Err(err))
	m.onAuthFailure(w, r, err)
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
		return "", ErrInvalidAuthFormat
	}
	return strings.TrimSpace(raw), nil
}

func writeAuthFailure(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.IsForbidden(err) {
		status = http.StatusForbidden
	} else {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	code := errors.GetCode(err)
	message := errors.DefaultMessageForCode(code)
	if ae, ok := err.(*errors.AppError); ok {
		message = ae.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(common.NewErrorResponse(code.String(), message))
}

// RequireRole rejects authenticated callers that lack role with 403.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasRole(r.Context(), role) {
				writeAuthFailure(w, r, ErrAccessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims stores claims, and the user id and roles they carry, in ctx.
func WithClaims(ctx context.Context, claims *TokenClaims) context.Context {
	ctx = context.WithValue(ctx, contextKeyClaims, claims)
	ctx = context.WithValue(ctx, common.ContextKeyUserID, claims.Subject)
	return context.WithValue(ctx, common.ContextKeyRoles, claims.Roles)
}

func ClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	claims, ok := ctx.Value(contextKeyClaims).(*TokenClaims)
	return claims, ok
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(common.ContextKeyUserID).(string)
	return uid, ok
}

func HasRole(ctx context.Context, role string) bool {
	claims, ok := ClaimsFromContext(ctx)
	return ok && claims.HasRole(role)
}
