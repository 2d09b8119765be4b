package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestRouterServesProbesOutsideWrap(t *testing.T) {
	ready := errors.New("postgres down")
	router := NewRouter(RouterConfig{
		CORSOrigin: "http://localhost:5173",
		Ready:      func(context.Context) error { return ready },
		Wrap: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			})
		},
	}, func(r chi.Router) {
		r.Get("/v1/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	})

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	rr := get("/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	require.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)
	ready = nil
	require.Equal(t, http.StatusOK, get("/readyz").Code)

	require.Equal(t, http.StatusOK, get("/metrics").Code)
	require.Equal(t, http.StatusUnauthorized, get("/v1/ping").Code)
}

func TestRouterAnswersPreflight(t *testing.T) {
	router := NewRouter(RouterConfig{CORSOrigin: "*"}, func(r chi.Router) {})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/progression/catalog", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}
