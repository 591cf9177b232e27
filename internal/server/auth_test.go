package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		apiKey        string
		header        string
		wantStatus    int
		wantChallenge string
	}{
		{"disabled without key", "", "", http.StatusOK, ""},
		{"disabled ignores junk header", "", "Basic abc", http.StatusOK, ""},
		{"missing header", "secret", "", http.StatusUnauthorized, `Bearer realm="toonify"`},
		{"wrong scheme", "secret", "Basic secret", http.StatusUnauthorized, `Bearer realm="toonify"`},
		{"wrong token", "secret", "Bearer nope", http.StatusUnauthorized, `error="invalid_token"`},
		{"prefix of key", "secret", "Bearer secre", http.StatusUnauthorized, `error="invalid_token"`},
		{"correct token", "secret", "Bearer secret", http.StatusOK, ""},
		{"scheme case-insensitive", "secret", "bearer secret", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tt.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, tt.wantChallenge) {
				t.Errorf("WWW-Authenticate = %q, want containing %q", got, tt.wantChallenge)
			}
			if strings.Contains(w.Body.String(), "secret") {
				t.Error("response body echoes the API key")
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":               "",
		"Bearer":         "",
		"Bearer abc":     "abc",
		"BEARER  abc ":   "abc",
		"Token abc":      "",
		"Bearer abc def": "abc def",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := bearerToken(req); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
