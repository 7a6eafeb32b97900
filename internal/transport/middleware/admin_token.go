// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

const msgInvalidAdminToken = "missing or invalid admin token"

// AdminTokenAuth guards operator routes with a static bearer token. An empty
// configured token disables the routes rather than opening them.
func AdminTokenAuth(adminToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	configured := strings.TrimSpace(adminToken) != ""
	want := []byte(adminToken)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !configured {
				logger.Error("admin route called but admin token is not configured", "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "admin auth not configured")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				reason := "wrong token"
				if !ok {
					reason = "no bearer token"
				}
				logger.Warn("admin request rejected",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"reason", reason,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, msgInvalidAdminToken)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
