// AngelaMos | 2026
// server_test.go

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deez125/novix-gateway/internal/config"
)

type fakeHealth struct {
	shutdown atomic.Bool
}

func (f *fakeHealth) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (f *fakeHealth) SetShutdown(v bool) { f.shutdown.Store(v) }

func newTestServer(h *fakeHealth) *Server {
	return New(Config{
		ServerConfig: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		HealthHandler: h,
	})
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	s := newTestServer(&fakeHealth{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestRecoversPanics(t *testing.T) {
	s := newTestServer(&fakeHealth{})
	s.Router().Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestShutdownMarksHealthBeforeStopping(t *testing.T) {
	h := &fakeHealth{}
	s := newTestServer(h)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Shutdown(ctx, 10*time.Millisecond))
	assert.True(t, h.shutdown.Load())
	require.NoError(t, <-errCh)
}
