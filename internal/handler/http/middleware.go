package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/azuma-miyu/filatelier/internal/identity"
	"github.com/azuma-miyu/filatelier/pkg/httputil"
	"github.com/azuma-miyu/filatelier/pkg/logger"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(raw string) (*identity.Principal, error)
}

// Authenticate resolves the shopper from the Authorization header and stores
// the principal in the request context. Requests without a valid token
// continue anonymously: cart endpoints are public and the checkout
// orchestrator turns a missing principal into a login redirect.
func Authenticate(verifier TokenVerifier, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := identity.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				if !errors.Is(err, identity.ErrNoToken) {
					l.WarnContext(r.Context(), "ignoring malformed authorization header",
						slog.String("path", r.URL.Path),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			principal, err := verifier.Verify(raw)
			if err != nil {
				l.WarnContext(r.Context(), "ignoring invalid bearer token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := identity.NewContext(r.Context(), principal)
			ctx = logger.WithUserID(ctx, principal.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
