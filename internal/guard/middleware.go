package guard

import (
	"net/http"

	"github.com/saimambayao/tms-access/internal/platform/httpx"
	"github.com/saimambayao/tms-access/internal/shared"
)

// Middleware wires the decision gate into chi handler chains. Stack a role
// gate and a permission gate on one route to require both; the first failing
// gate responds.
type Middleware struct {
	Gate Gate
}

// RequireRole ensures the current identity holds minRole or higher.
func (m Middleware) RequireRole(minRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				deny(w)
				return
			}
			if err := m.Gate.RequireRole(r.Context(), *id, minRole, r.Method+" "+r.URL.Path); err != nil {
				deny(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission ensures the current identity holds the named permission.
func (m Middleware) RequirePermission(codename string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				deny(w)
				return
			}
			if err := m.Gate.RequirePermission(r.Context(), *id, codename, r.Method+" "+r.URL.Path); err != nil {
				deny(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the identity holds at least one of the permissions.
// Only the final denial is audited, not each miss.
func (m Middleware) RequireAny(codenames ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(codenames) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				deny(w)
				return
			}
			for _, codename := range codenames {
				if m.Gate.Resolver.HasPermission(r.Context(), *id, codename) {
					m.Gate.allowed(r.Context(), *id, "permission")
					next.ServeHTTP(w, r)
					return
				}
			}
			m.Gate.denied(r.Context(), *id, "permission", "denied "+r.Method+" "+r.URL.Path+": no matching permission")
			deny(w)
			return
		})
	}
}

// deny sends the uniform denial response. The specific missing requirement
// is never included.
func deny(w http.ResponseWriter) {
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "you do not have permission to perform this action")
}
