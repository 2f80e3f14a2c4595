package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/kbukum/opkit/errors"
)

// AuthConfig configures the JWT authentication middleware.
type AuthConfig struct {
	// Secret is the HMAC key tokens are signed with.
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// SkipPaths are URL path prefixes that bypass authentication.
	SkipPaths []string
}

type claimsKey struct{}

// Claims returns the validated token claims stored by Auth.
func Claims(ctx context.Context) (jwt.MapClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(jwt.MapClaims)
	return c, ok
}

// Auth returns middleware that requires an HS256-signed Bearer token.
// Validated claims are stored in the request context.
func Auth(cfg AuthConfig) Middleware {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (any, error) { return cfg.Secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.SkipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, apperrors.Unauthorized("authorization header required"))
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeError(w, apperrors.Unauthorized("invalid authorization header format"))
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(token, claims, keyFunc); err != nil {
				writeError(w, apperrors.Unauthorized("invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}
