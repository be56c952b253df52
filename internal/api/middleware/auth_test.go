package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func authHandler() (http.Handler, *string) {
	var caller string
	handler := Auth(map[string]string{
		"auth-server": "secret-a",
		"sync-server": "secret-b",
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = GetCaller(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &caller
}

func TestAuth_ValidToken(t *testing.T) {
	handler, caller := authHandler()

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret-b")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sync-server", *caller)
}

func TestAuth_Rejections(t *testing.T) {
	handler, _ := authHandler()

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"wrong token", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		})
	}
}

func TestAuth_CaseInsensitiveBearerPrefix(t *testing.T) {
	handler, caller := authHandler()

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "bearer secret-a")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "auth-server", *caller)
}
