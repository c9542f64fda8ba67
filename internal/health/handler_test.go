// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, ReadinessResponse) {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestReadiness(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		h := NewHandler(Check{"database", pinger{}}, Check{"redis", pinger{}})
		rec, body := get(t, h, "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", body.Status)
		require.Len(t, body.Checks, 2)
		assert.Equal(t, "database", body.Checks[0].Name)
		assert.Equal(t, "redis", body.Checks[1].Name)
	})

	t.Run("one failing dependency degrades", func(t *testing.T) {
		h := NewHandler(Check{"database", pinger{}}, Check{"redis", pinger{err: errors.New("down")}})
		rec, body := get(t, h, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", body.Status)
		assert.False(t, body.Checks[1].Healthy)
		assert.Equal(t, "ping failed", body.Checks[1].Message)
	})

	t.Run("missing checker is unhealthy", func(t *testing.T) {
		h := NewHandler(Check{Name: "database"})
		rec, body := get(t, h, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "database checker not configured", body.Checks[0].Message)
	})

	t.Run("not ready", func(t *testing.T) {
		h := NewHandler()
		h.SetReady(false)
		rec, body := get(t, h, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "not_ready", body.Status)
	})
}

func TestLivenessDuringShutdown(t *testing.T) {
	h := NewHandler()

	rec, body := get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body.Status)

	h.SetShutdown(true)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec, body = get(t, h, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "shutting_down", body.Status)
	}
}
