package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/saimambayao/tms-access/internal/platform/httpx"
	"github.com/saimambayao/tms-access/internal/shared"
)

// Middleware resolves bearer tokens into an Identity in the request context.
// Requests without an Authorization header pass through anonymous; the guard
// denies them on protected routes.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			bearer := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			id, err := service.Authenticate(r.Context(), bearer)
			if err != nil {
				if logger != nil {
					logger.Info("token authentication failed", slog.String("remote", r.RemoteAddr))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), &id)))
		})
	}
}
