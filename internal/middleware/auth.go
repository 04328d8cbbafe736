package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/dailyquestion/internal/auth"
)

// MemberHeader carries the authenticated member id set by the API gateway.
const MemberHeader = "X-User-Id"

// RequireMember reads the member id from MemberHeader and populates the
// request identity. Requests without a valid id are rejected.
func RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		memberID, err := strconv.ParseInt(r.Header.Get(MemberHeader), 10, 64)
		if err != nil || memberID <= 0 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid member identity")
			return
		}

		ctx := auth.WithMember(r.Context(), memberID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin checks the bearer token on operator routes. An empty token
// disables the routes entirely.
func RequireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "admin token required")
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{Admin: true})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
