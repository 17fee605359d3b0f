package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flood-overlay/internal/calibration"
	"github.com/couchcryptid/flood-overlay/internal/domain"
	"github.com/couchcryptid/flood-overlay/internal/flood"
	"github.com/couchcryptid/flood-overlay/internal/observability"
)

const maxBodyBytes = 1 << 20

// Restarter discards the calibration session and returns the fresh status.
type Restarter interface {
	Restart(ctx context.Context) domain.CalibrationStatus
}

// API bundles the components served under /api. Overlays and Status may be
// nil, which leaves their routes unregistered.
type API struct {
	Calibration *calibration.Controller
	Restarter   Restarter
	Overlays    *flood.CachedEngine
	Status      http.Handler
	Metrics     *observability.Metrics
}

// Server exposes health, readiness, metrics and the calibration and overlay
// JSON API.
type Server struct {
	httpServer *http.Server
	api        API
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, the
// /api routes and the /ws status stream.
func NewServer(addr string, ready sharedobs.ReadinessChecker, api API, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		api:    api,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/calibration", s.handleCalibration)
	mux.HandleFunc("POST /api/calibration/restart", s.handleRestart)
	mux.HandleFunc("POST /api/transform", s.handleTransform)
	if api.Overlays != nil {
		mux.HandleFunc("GET /api/overlay", s.handleOverlay)
		mux.HandleFunc("POST /api/water-height", s.handleWaterHeight)
	}
	if api.Status != nil {
		mux.Handle("GET /ws", api.Status)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type calibrationResponse struct {
	domain.CalibrationStatus
	DisplayPercentage int                        `json:"display_percentage"`
	LastRecords       []domain.CalibrationRecord `json:"last_records,omitempty"`
}

// handleCalibration serves the session status. ?last=n adds the n most
// recent training records.
func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	resp := calibrationResponse{
		CalibrationStatus: s.api.Calibration.Status(),
		DisplayPercentage: s.api.Calibration.DisplayPercentage(),
	}
	if v := r.URL.Query().Get("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid last %q", v))
			return
		}
		resp.LastRecords = s.api.Calibration.LastRecords(n)
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	st := s.api.Restarter.Restart(r.Context())
	s.logger.Info("calibration restart requested", "remote", r.RemoteAddr, "generation", st.Generation)
	sharedobs.WriteJSON(w, http.StatusOK, st)
}

type transformRequest struct {
	Points []domain.GeoPoint   `json:"points"`
	Local  []domain.LocalPoint `json:"local,omitempty"`
}

type transformResponse struct {
	Points          []domain.LocalPoint `json:"points"`
	ErrorHorizontal *float64            `json:"error_horizontal,omitempty"`
}

// handleTransform maps geodetic points into tracking space. When local
// positions are supplied the horizontal RMSE against them is reported too.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var resp transformResponse
	var err error
	if req.Local != nil {
		var rmse float64
		resp.Points, rmse, err = s.api.Calibration.Evaluate(req.Points, req.Local)
		resp.ErrorHorizontal = &rmse
	} else {
		resp.Points, err = s.api.Calibration.TransformGpsToWorldBatch(req.Points)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

// handleOverlay builds the flood overlay around ?lon=&lat=[&alt=].
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	device, err := parseDevice(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ov, err := s.buildOverlay(device)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, ov)
}

type waterHeightRequest struct {
	Device   domain.GeoPoint   `json:"device"`
	Position domain.LocalPoint `json:"position"`
}

type waterHeightResponse struct {
	WaterHeight float64 `json:"water_height"`
	Vertices    int     `json:"vertices"`
}

// handleWaterHeight reports the water depth at a tracking-space position,
// using the overlay around the device.
func (s *Server) handleWaterHeight(w http.ResponseWriter, r *http.Request) {
	var req waterHeightRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ov, err := s.buildOverlay(req.Device)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h, err := ov.WaterHeightAt(req.Position)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, waterHeightResponse{WaterHeight: h, Vertices: len(ov.Vertices)})
}

func (s *Server) buildOverlay(device domain.GeoPoint) (flood.Overlay, error) {
	fitted, ok := s.api.Calibration.Current()
	if !ok {
		return flood.Overlay{}, domain.ErrTransformUnavailable
	}
	ov, hit, err := s.api.Overlays.BuildOverlay(device, fitted)
	if s.api.Metrics != nil {
		label := "miss"
		if hit {
			label = "hit"
		}
		s.api.Metrics.OverlayRequests.WithLabelValues(label).Inc()
	}
	return ov, err
}

func parseDevice(r *http.Request) (domain.GeoPoint, error) {
	q := r.URL.Query()
	var p domain.GeoPoint
	var err error
	if p.Longitude, err = strconv.ParseFloat(q.Get("lon"), 64); err != nil {
		return p, fmt.Errorf("invalid lon %q", q.Get("lon"))
	}
	if p.Latitude, err = strconv.ParseFloat(q.Get("lat"), 64); err != nil {
		return p, fmt.Errorf("invalid lat %q", q.Get("lat"))
	}
	if v := q.Get("alt"); v != "" {
		if p.Altitude, err = strconv.ParseFloat(v, 64); err != nil {
			return p, fmt.Errorf("invalid alt %q", v)
		}
	}
	return p, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTransformUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrEmptyInput), errors.Is(err, domain.ErrLengthMismatch):
		return http.StatusBadRequest
	case errors.Is(err, flood.ErrEmptyOverlay):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
