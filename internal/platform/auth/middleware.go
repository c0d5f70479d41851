package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/observability"
	"github.com/medassist/api/internal/platform/requestctx"
	"github.com/medassist/api/internal/platform/token"
)

const accessCookieName = "access_token"

// Verifier checks an access token and yields its claims.
type Verifier interface {
	Verify(raw, kind string) (token.Claims, error)
}

// RequireAuth authenticates the request from the Authorization bearer header,
// falling back to the access cookie set for browser clients.
func RequireAuth(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := bearerToken(r)
			if raw == "" {
				if cookie, err := r.Cookie(accessCookieName); err == nil {
					raw = cookie.Value
				}
			}
			if raw == "" {
				httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeUnauthorized, "authentication required"))
				return
			}

			claims, err := verifier.Verify(raw, token.KindAccess)
			if err != nil {
				code := httpx.CodeTokenInvalid
				if errors.Is(err, token.ErrExpired) {
					code = httpx.CodeTokenExpired
				}
				httpx.WriteError(ctx, w, httpx.CodeError(code, "invalid or expired token"))
				return
			}

			identity := Identity{UserID: claims.UserID, Roles: claims.Roles}
			ctx = WithIdentity(ctx, identity)
			logger := requestctx.Logger(ctx).With(
				zap.String("user_id", observability.SanitizeUserID(identity.UserID)),
			)
			ctx = requestctx.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates the route to identities carrying at least one of the
// given roles. Must run after RequireAuth.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := FromContext(ctx)
			if !ok {
				httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeUnauthorized, "authentication required"))
				return
			}
			for _, role := range roles {
				if identity.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeForbidden, "insufficient role"))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
