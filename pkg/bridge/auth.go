package bridge

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// withAdminAuth gates an admin handler behind a bearer JWT signed with
// HMAC-SHA256 using s.adminSecret, in the teacher's NewMiddleware
// fail-closed style. An empty adminSecret disables gating entirely
// (single-operator/dev deployments run without an admin token).
func (s *Server) withAdminAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.adminSecret == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "E-UICP-0103", "missing or malformed Authorization header")
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			return []byte(s.adminSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "E-UICP-0104", "invalid or expired admin token")
			return
		}
		next(w, r)
	}
}
