package auth

import (
	"net/http"
	"strings"

	"github.com/regwatch/regwatch/internal/platform/httpx"
	"github.com/regwatch/regwatch/internal/shared"
)

// RequireAuth rejects requests without a signed-in user. Page requests are redirected
// to the login form; API and script requests get a 401 problem.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.SessionFromContext(r.Context()).IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") || r.Header.Get(shared.CSRFHeader) != "" || r.Method != http.MethodGet {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
	})
}
