package projauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const (
	accountIDKey    contextKey = "projauth.accountId"
	accountEmailKey contextKey = "projauth.accountEmail"
)

// Middleware authenticates requests carrying a session credential
type Middleware struct {
	Tokens *SessionTokenIssuer

	// Header checked for "Bearer <token>", defaults to Authorization
	AuthTokenHeaderName string

	// Cookie checked when the header is absent. Empty disables cookies.
	AuthTokenCookieName string

	Logger *slog.Logger
}

func (a *Middleware) EnsureReasonableDefaults() {
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
}

// Authenticate returns the claims of the first credential on the request that verifies
func (a *Middleware) Authenticate(r *http.Request) (*SessionClaims, error) {
	a.EnsureReasonableDefaults()
	var candidates []string
	for _, value := range r.Header.Values(a.AuthTokenHeaderName) {
		if token, ok := strings.CutPrefix(value, "Bearer "); ok {
			candidates = append(candidates, strings.TrimSpace(token))
		}
	}
	if a.AuthTokenCookieName != "" {
		for _, cookie := range r.CookiesNamed(a.AuthTokenCookieName) {
			if len(cookie.Value) > 0 {
				candidates = append(candidates, cookie.Value)
			}
		}
	}

	lastErr := ErrTokenMalformed
	for _, token := range candidates {
		claims, err := a.Tokens.Verify(token)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ExtractAccount sets the account id on the request context when a valid credential is
// present. It never rejects a request.
func (a *Middleware) ExtractAccount(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := a.Authenticate(r); err == nil {
			r = withAccount(r, claims)
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureAccount rejects requests without a valid credential with 401
func (a *Middleware) EnsureAccount(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r)
		if err != nil {
			a.Logger.Debug("rejected session credential", "path", r.URL.Path, "error", err)
			writeAuthError(w, http.StatusUnauthorized, NewAuthError(ErrCodeUnauthorized, "Not authenticated", ""))
			return
		}
		next.ServeHTTP(w, withAccount(r, claims))
	})
}

func withAccount(r *http.Request, claims *SessionClaims) *http.Request {
	return r.WithContext(ContextWithAccount(r.Context(), claims))
}

// ContextWithAccount stores the account carried by claims on ctx. Other transports
// (see the grpc package) use it so handlers read the account the same way.
func ContextWithAccount(ctx context.Context, claims *SessionClaims) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, claims.AccountID())
	return context.WithValue(ctx, accountEmailKey, claims.Email)
}

// GetAccountIDFromContext returns the authenticated account id, or "" if none
func GetAccountIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(accountIDKey).(string)
	return v
}

// GetAccountEmailFromContext returns the email carried by the session credential
func GetAccountEmailFromContext(ctx context.Context) string {
	v, _ := ctx.Value(accountEmailKey).(string)
	return v
}
