package obs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-komisi/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("komisi", []float64{1, 10}, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Post("/api/v1/commission/reports/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commission/reports/abc", strings.NewReader("ledger"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	route := "/api/v1/commission/reports/{id}"
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodPost, route, "204")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.Latency))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.UploadBytes))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))

	again := obs.NewHTTPMetrics("komisi", nil, registry)
	require.Same(t, metrics.Requests, again.Requests)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 25, 100}, obs.ParseBucketsCSV("100, 5,abc,-1,25,5"))
	require.Empty(t, obs.ParseBucketsCSV(""))
}

func TestObserveReport(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("komisi", registry)

	obs.ObserveReport(obs.SourceHTTP, "ok", 12, 3.5)
	obs.ObserveReport(obs.SourceHTTP, "rejected", 0, 1)

	require.Equal(t, 1.0, testutil.ToFloat64(obs.CommissionReportsTotal.WithLabelValues(obs.SourceHTTP, "ok")))
	require.Equal(t, 12.0, testutil.ToFloat64(obs.CommissionReportRows))
	require.Equal(t, 1, testutil.CollectAndCount(obs.CommissionReportDuration))
}

func TestRequestLoggerIncludesAnnotations(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware)
	r.Post("/api/v1/commission/reports", func(w http.ResponseWriter, r *http.Request) {
		obs.Annotate(r.Context(), "report_id", "rep-1")
		obs.Annotate(r.Context(), "job_id", "")
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/commission/reports", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, float64(422), entry["status"])
	require.Equal(t, "rep-1", entry["report_id"])
	require.NotContains(t, entry, "job_id")
	require.Equal(t, "/api/v1/commission/reports", entry["route"])
	require.Equal(t, "http_request", entry["message"])
}

func TestAnnotateOutsideMiddleware(t *testing.T) {
	require.NotPanics(t, func() { obs.Annotate(context.Background(), "report_id", "x") })
}
