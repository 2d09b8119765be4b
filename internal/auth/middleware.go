package auth

import (
	"net/http"

	authlib "example.com/progression/internal/platform/auth"
)

// PublicPaths are served without a bearer token.
var PublicPaths = []string{"/healthz", "/readyz", "/metrics"}

// NewMiddleware returns bearer-token middleware that lets PublicPaths through.
func NewMiddleware(cfg Config) authlib.Middleware {
	public := make(map[string]struct{}, len(PublicPaths))
	for _, p := range PublicPaths {
		public[p] = struct{}{}
	}
	return authlib.NewMiddleware(cfg, func(r *http.Request) bool {
		_, ok := public[r.URL.Path]
		return ok
	})
}
