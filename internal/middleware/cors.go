package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// Suffixes of hosts that are allowed over https without being listed.
var trustedHosts = []string{"lovableproject.com", "megtech.online"}

// OriginAllowed reports whether a browser origin may call the API.
func OriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, o := range allowed {
		if strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, trusted := range trustedHosts {
		if strings.Contains(host, trusted) {
			return true
		}
	}
	return false
}

// CORSMiddleware sets CORS headers for allowed origins and answers preflight requests.
func CORSMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if OriginAllowed(origin, allowed) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
