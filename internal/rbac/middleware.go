package rbac

import (
	"net/http"
)

// Guard turns role permissions into chi-compatible middleware. The role is
// expected in the request context (see WithRole).
type Guard struct {
	checker *Checker
}

func NewGuard(c *Checker) *Guard {
	if c == nil {
		c = NewChecker(nil)
	}
	return &Guard{checker: c}
}

// Require enforces a single permission.
func (g *Guard) Require(perm string) func(http.Handler) http.Handler {
	return g.guard(func(role string) bool { return g.checker.Has(role, perm) })
}

// RequireAny enforces that the role has at least one of the permissions.
func (g *Guard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return g.guard(func(role string) bool { return g.checker.Any(role, perms...) })
}

func (g *Guard) guard(allowed func(role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !allowed(role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
