// AngelaMos | 2026
// server_test.go

package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petlove/backoffice-api/internal/config"
)

type recordingHealth struct {
	ready    bool
	shutdown bool
}

func (h *recordingHealth) SetReady(ready bool)       { h.ready = ready }
func (h *recordingHealth) SetShutdown(shutdown bool) { h.shutdown = shutdown }

func newTestServer(health ShutdownNotifier) *Server {
	return New(Config{
		ServerConfig: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ShutdownTimeout: time.Second,
		},
		HealthHandler: health,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestServer_RecoversFromPanics(t *testing.T) {
	srv := newTestServer(nil)
	srv.Router().Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ShutdownMarksUnready(t *testing.T) {
	health := &recordingHealth{ready: true}
	srv := newTestServer(health)

	require.NoError(t, srv.Shutdown(context.Background(), 0))
	assert.False(t, health.ready)
	assert.True(t, health.shutdown)
}

func TestServer_ShutdownHonorsContextDuringDrain(t *testing.T) {
	srv := newTestServer(&recordingHealth{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.Shutdown(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
