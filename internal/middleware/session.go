package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/AnshRaj112/rehab-backend/internal/logx"
	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/AnshRaj112/rehab-backend/pkg/clientip"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "rehab_session"

type sessionContextKey struct{}

// Authenticator resolves a session token. *services.AuthService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, meta models.RequestMeta) (models.Session, error)
}

// Meta builds the audit attributes of r.
func Meta(res clientip.Resolver, r *http.Request) models.RequestMeta {
	return models.RequestMeta{IPAddress: res.ClientIP(r), UserAgent: r.UserAgent()}
}

// SessionToken returns the session cookie value or "".
func SessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// ClearSessionCookie expires the session cookie in the browser.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(models.Session)
	return s, ok
}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// RequireSession authenticates the session cookie and, when kinds is not
// empty, requires the principal to be one of them.
func RequireSession(auth Authenticator, res clientip.Resolver, secureCookie bool, kinds ...models.PrincipalKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := auth.Authenticate(r.Context(), SessionToken(r), Meta(res, r))
			switch {
			case errors.Is(err, services.ErrSessionExpired):
				ClearSessionCookie(w, secureCookie)
				writeJSONError(w, http.StatusUnauthorized, "Session expired. Please sign in again.")
				return
			case errors.Is(err, services.ErrUnauthenticated):
				writeJSONError(w, http.StatusUnauthorized, "Authentication required")
				return
			case err != nil:
				logx.Errorf("authenticate session: %v", err)
				writeJSONError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if len(kinds) > 0 && !slices.Contains(kinds, session.Kind) {
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}
