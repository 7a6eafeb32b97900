// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAdminTokenAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	cases := []struct {
		name       string
		configured string
		header     string
		wantStatus int
		wantError  string
	}{
		{name: "token not configured", configured: "", header: "Bearer x", wantStatus: http.StatusInternalServerError, wantError: "admin auth not configured"},
		{name: "missing token", configured: "admin-secret", wantStatus: http.StatusUnauthorized, wantError: msgInvalidAdminToken},
		{name: "wrong scheme", configured: "admin-secret", header: "Basic admin-secret", wantStatus: http.StatusUnauthorized, wantError: msgInvalidAdminToken},
		{name: "wrong token", configured: "admin-secret", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantError: msgInvalidAdminToken},
		{name: "valid token", configured: "admin-secret", header: "Bearer admin-secret", wantStatus: http.StatusAccepted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/compact", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			AdminTokenAuth(tc.configured, logger)(ok).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantError == "" {
				return
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] != tc.wantError {
				t.Fatalf("expected error %q got %q", tc.wantError, body["error"])
			}
			if tc.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Fatal("expected WWW-Authenticate: Bearer")
			}
		})
	}
}
