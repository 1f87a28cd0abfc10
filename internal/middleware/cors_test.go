package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:5173", "https://megtech.online", "https://extra.example/"}

	cases := map[string]bool{
		"http://localhost:5173":                true,
		"https://megtech.online":               true,
		"https://extra.example":                true,
		"https://preview-1.lovableproject.com": true,
		"https://app.megtech.online":           true,
		"http://app.megtech.online":            false,
		"https://evil.example":                 false,
		"":                                     false,
	}
	for origin, want := range cases {
		assert.Equal(t, want, OriginAllowed(origin, allowed), origin)
	}
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	h := CORSMiddleware([]string{"http://localhost:3000"}, next)

	t.Run("preflight", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodOptions, "/detect", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.False(t, called)
	})

	t.Run("unknown origin", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.True(t, called)
	})
}
