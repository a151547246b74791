package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/asktennis/asktennis/internal/models"
)

// Auth requires one of apiKeys in headerName (or an Authorization bearer
// token) on every path except the public ones.
func Auth(apiKeys []string, headerName string, publicPaths ...string) func(http.Handler) http.Handler {
	var keys [][]byte
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[strings.TrimSuffix(p, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[strings.TrimSuffix(r.URL.Path, "/")] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerName)
			if key == "" {
				if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					key = strings.TrimSpace(bearer)
				}
			}

			if key == "" {
				models.WriteError(w, http.StatusUnauthorized, "API key required")
				return
			}
			if !validKey(keys, key) {
				models.WriteError(w, http.StatusForbidden, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validKey(keys [][]byte, candidate string) bool {
	c := []byte(candidate)
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k, c) == 1 {
			ok = true
		}
	}
	return ok
}
