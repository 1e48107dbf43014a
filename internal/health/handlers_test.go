package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-komisi/internal/health"
)

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func ready(t *testing.T, h health.Handler) (int, readyBody) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body readyBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func ok(context.Context) error { return nil }

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadyRunsProbes(t *testing.T) {
	h := health.Handler{Probes: map[string]health.Probe{
		"redis":      ok,
		"output_dir": health.DirWritable(t.TempDir()),
	}}
	code, body := ready(t, h)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body.Status)
	require.Equal(t, map[string]string{"redis": "ok", "output_dir": "ok"}, body.Checks)
}

func TestReadyReportsFailingProbe(t *testing.T) {
	h := health.Handler{
		Timeout: 10 * time.Millisecond,
		Probes: map[string]health.Probe{
			"redis": func(context.Context) error { return errors.New("redis down") },
			"slow": func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			"output_dir": health.DirWritable(filepath.Join(t.TempDir(), "missing")),
		},
	}
	code, body := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unavailable", body.Status)
	require.Equal(t, "redis down", body.Checks["redis"])
	require.Equal(t, context.DeadlineExceeded.Error(), body.Checks["slow"])
	require.Contains(t, body.Checks["output_dir"], "output dir not writable")
}

func TestReadinessWhileDraining(t *testing.T) {
	h := health.Handler{Probes: map[string]health.Probe{"redis": ok}}
	t.Cleanup(func() { health.SetReady(true) })

	code, _ := ready(t, h)
	require.Equal(t, http.StatusOK, code)

	health.SetReady(false)
	code, body := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "draining", body.Status)
}
