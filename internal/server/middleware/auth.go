package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/domain"
)

// Authenticator resolves request credentials to an identity.
type Authenticator interface {
	AuthenticateToken(token string) (userID int64, role string, err error)
	ValidateAPIKey(ctx context.Context, rawKey string) (*domain.User, error)
}

// Auth accepts a bearer JWT, an X-API-Key header, or an access_token query
// parameter (browsers cannot set headers on WebSocket upgrades).
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := extractBearer(r); tok != "" {
				if userID, role, err := authn.AuthenticateToken(tok); err == nil {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, role)))
					return
				}
			}

			if key := r.Header.Get("X-API-Key"); key != "" {
				user, err := authn.ValidateAPIKey(r.Context(), key)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user.ID, user.Role)))
					return
				}
				log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("api key rejected")
			}

			http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return r.URL.Query().Get("access_token")
}
