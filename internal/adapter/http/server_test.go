package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/flood-overlay/internal/adapter/http"
	"github.com/couchcryptid/flood-overlay/internal/calibration"
	"github.com/couchcryptid/flood-overlay/internal/domain"
	"github.com/couchcryptid/flood-overlay/internal/flood"
	"github.com/couchcryptid/flood-overlay/internal/observability"
	"github.com/couchcryptid/flood-overlay/internal/pipeline"
	"github.com/couchcryptid/flood-overlay/internal/transform"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// Local x/z are 1e5 units per degree from (13.2, 55.7).
var corners = []domain.GeoPoint{
	{Longitude: 13.2, Latitude: 55.7, Accuracy: 3},
	{Longitude: 13.2001, Latitude: 55.7, Accuracy: 3},
	{Longitude: 13.2, Latitude: 55.7001, Accuracy: 3},
	{Longitude: 13.2001, Latitude: 55.7001, Accuracy: 3},
}

func toLocal(p domain.GeoPoint) domain.LocalPoint {
	return domain.LocalPoint{X: (p.Longitude - 13.2) * 1e5, Z: (p.Latitude - 55.7) * 1e5}
}

var corpus = []domain.FloodSample{
	{Longitude: 13.2, Latitude: 55.7, GroundHeight: 5, WaterHeight: 0.5, NearestNeighborGroundHeight: domain.NoNeighborHeight},
	{Longitude: 13.2001, Latitude: 55.7, GroundHeight: 5.5, WaterHeight: 0.2, NearestNeighborGroundHeight: domain.NoNeighborHeight},
	{Longitude: 13.2, Latitude: 55.7001, IsInsideBuilding: true, GroundHeight: 6, NearestNeighborGroundHeight: 5.2, NearestNeighborWaterHeight: 0.4},
}

type fixture struct {
	srv     *httpadapter.Server
	ctrl    *calibration.Controller
	metrics *observability.Metrics
}

func newFixture(t *testing.T, readyErr error) fixture {
	t.Helper()
	s, err := transform.New(transform.LinearXZ)
	require.NoError(t, err)
	ctrl := calibration.NewController(calibration.DefaultConfig(), s, clockwork.NewFakeClockAt(t0), slog.Default())
	metrics := observability.NewMetricsForTesting()
	engine := flood.NewEngine(corpus, domain.HeightModel{Fallback: domain.FallbackZero}, 20, slog.Default())

	api := httpadapter.API{
		Calibration: ctrl,
		Restarter:   pipeline.New(nil, ctrl, nil, slog.Default(), metrics),
		Overlays:    flood.NewCachedEngine(engine, 8),
		Status:      http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }),
		Metrics:     metrics,
	}
	srv := httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, api, slog.Default())
	return fixture{srv: srv, ctrl: ctrl, metrics: metrics}
}

func (f fixture) calibrate(t *testing.T) {
	t.Helper()
	for _, p := range corners {
		require.Equal(t, calibration.OutcomeTraining, f.ctrl.AddRecord(p, toLocal(p), time.Time{}))
	}
	applied, err := f.ctrl.SolveTransformation(context.Background())
	require.NoError(t, err)
	require.True(t, applied)
}

func (f fixture) do(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body) //nolint:errcheck
		}
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := newFixture(t, fmt.Errorf("calibration in progress")).do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusStreamRoute(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/ws", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCalibrationStatus(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/calibration", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["transformation_available"])
	assert.Equal(t, "linear-xz", body["strategy"])

	f.calibrate(t)

	rec = f.do(http.MethodGet, "/api/calibration?last=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, true, body["transformation_available"])
	assert.InDelta(t, 200, body["percentage"], 0)
	assert.InDelta(t, 100, body["display_percentage"], 0)
	assert.Len(t, body["last_records"], 2)
}

func TestCalibrationStatus_BadLast(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/api/calibration?last=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[map[string]string](t, rec)
	assert.Equal(t, `invalid last "-1"`, body["error"])
}

func TestRestart(t *testing.T) {
	f := newFixture(t, nil)
	f.calibrate(t)
	before := f.ctrl.Status()

	rec := f.do(http.MethodPost, "/api/calibration/restart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := decode[domain.CalibrationStatus](t, rec)
	assert.Equal(t, before.Generation+1, st.Generation)
	assert.False(t, st.TransformationAvailable)
	assert.False(t, f.ctrl.TransformationAvailable())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Restarts), 0)
}

func TestTransform(t *testing.T) {
	f := newFixture(t, nil)

	req := map[string]any{"points": []domain.GeoPoint{{Longitude: 13.20005, Latitude: 55.70002}}}
	rec := f.do(http.MethodPost, "/api/transform", req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not calibrated yet")

	f.calibrate(t)

	rec = f.do(http.MethodPost, "/api/transform", req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Points          []domain.LocalPoint `json:"points"`
		ErrorHorizontal *float64            `json:"error_horizontal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 1)
	assert.InDelta(t, 5, resp.Points[0].X, 1e-6)
	assert.InDelta(t, 2, resp.Points[0].Z, 1e-6)
	assert.Nil(t, resp.ErrorHorizontal)
}

func TestTransform_WithError(t *testing.T) {
	f := newFixture(t, nil)
	f.calibrate(t)

	rec := f.do(http.MethodPost, "/api/transform", map[string]any{
		"points": []domain.GeoPoint{{Longitude: 13.2, Latitude: 55.7}},
		"local":  []domain.LocalPoint{{X: 2, Z: 0}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.InDelta(t, 1, body["error_horizontal"], 1e-6)
}

func TestTransform_BadRequests(t *testing.T) {
	f := newFixture(t, nil)
	f.calibrate(t)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{"points":`},
		{"empty points", map[string]any{"points": []domain.GeoPoint{}}},
		{"length mismatch", map[string]any{
			"points": []domain.GeoPoint{{Longitude: 13.2, Latitude: 55.7}},
			"local":  []domain.LocalPoint{},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/transform", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode[map[string]string](t, rec), "error")
		})
	}
}

func TestOverlay(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/overlay?lon=13.20001&lat=55.70001", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.calibrate(t)

	rec = f.do(http.MethodGet, "/api/overlay?lon=13.20001&lat=55.70001&alt=12", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ov := decode[flood.Overlay](t, rec)
	require.Len(t, ov.Vertices, 3)
	assert.InDelta(t, 5, ov.CameraGroundHeight, 1e-12)
	assert.InDelta(t, 12, ov.Device.Altitude, 0)
	assert.InDelta(t, 0.5, ov.Vertices[0].Local.Y, 1e-9)
	assert.InDelta(t, 10, ov.Vertices[1].Local.X, 1e-6)

	f.do(http.MethodGet, "/api/overlay?lon=13.20001&lat=55.70001", nil)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.OverlayRequests.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.OverlayRequests.WithLabelValues("hit")), 0)
}

func TestOverlay_BadQuery(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{"", "lon=x&lat=55.7", "lon=13.2", "lon=13.2&lat=55.7&alt=high"} {
		rec := f.do(http.MethodGet, "/api/overlay?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestWaterHeight(t *testing.T) {
	f := newFixture(t, nil)
	f.calibrate(t)

	device := domain.GeoPoint{Longitude: 13.20001, Latitude: 55.70001}
	tests := []struct {
		name     string
		position domain.LocalPoint
		want     float64
	}{
		{"street sample", domain.LocalPoint{X: 0.5, Y: 0.5, Z: 0}, 0.5},
		{"second street sample", domain.LocalPoint{X: 9, Y: 0, Z: 1}, 0.2},
		{"building uses neighbor water", domain.LocalPoint{X: 0, Y: 0.6, Z: 9}, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/water-height", map[string]any{"device": device, "position": tt.position})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			body := decode[map[string]float64](t, rec)
			assert.InDelta(t, tt.want, body["water_height"], 1e-12)
			assert.InDelta(t, 3, body["vertices"], 0)
		})
	}
}

func TestWaterHeight_NoSamplesInRange(t *testing.T) {
	f := newFixture(t, nil)
	f.calibrate(t)

	rec := f.do(http.MethodPost, "/api/water-height", map[string]any{
		"device":   domain.GeoPoint{Longitude: 14, Latitude: 56},
		"position": domain.LocalPoint{},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
