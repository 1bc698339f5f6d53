// Package httpapi is the HTTP/JSON surface consumed by an external
// collaborator (spec.md §6): the ten JSON POST endpoints plus a websocket
// stream, layered over internal/lifecycle and internal/store; it uses
// internal/registry only for its DeviceID and Sensor types.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/sensorhost/sensorhost/internal/lifecycle"
	"github.com/sensorhost/sensorhost/internal/store"
	"github.com/sensorhost/sensorhost/internal/version"
)

// ReadinessChecker reports whether the server can serve traffic; nil means
// always ready.
type ReadinessChecker func(ctx context.Context) error

// Server is the sensorhostd HTTP server: route registration, middleware
// chain, and lifecycle.
type Server struct {
	httpServer *http.Server
	controller *lifecycle.Controller
	store      *store.Store
	hub        *Hub
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
}

// Config controls Server construction beyond its required dependencies.
type Config struct {
	Addr          string
	DevMode       bool
	RateLimitRPS  float64
	RateLimitBurst int
	Ready         ReadinessChecker
}

// New builds a Server wired to controller (the device lifecycle state
// machine) and its underlying store (for the direct data/monitor-conf
// endpoints), plus a stream Hub that is also handed to
// lifecycle.New as its Broadcaster so device streams fan out here.
func New(cfg Config, controller *lifecycle.Controller, hub *Hub, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		controller: controller,
		store:      controller.Store(),
		hub:        hub,
		logger:     logger,
		mux:        mux,
		ready:      cfg.Ready,
	}

	s.registerRoutes()

	if cfg.DevMode {
		mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
		logger.Info("swagger UI enabled (dev_mode)", zap.String("path", "/swagger/"))
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 100
	}

	middlewares := []Middleware{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, []string{"/healthz", "/readyz", "/metrics"}),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(rps, burst, []string{"/healthz", "/readyz", "/metrics"}),
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      Chain(mux, middlewares...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/v1/start-device-init", s.handleStartDeviceInit)
	s.mux.HandleFunc("POST /api/v1/connect-device", s.handleConnectDevice)
	s.mux.HandleFunc("POST /api/v1/obtain-device-conf-info", s.handleObtainDeviceConfInfo)
	s.mux.HandleFunc("POST /api/v1/configure-device", s.handleConfigureDevice)
	s.mux.HandleFunc("POST /api/v1/interrupt-device-init", s.handleInterruptDeviceInit)
	s.mux.HandleFunc("POST /api/v1/get-device-list", s.handleGetDeviceList)
	s.mux.HandleFunc("POST /api/v1/get-device-sensor-info", s.handleGetDeviceSensorInfo)
	s.mux.HandleFunc("POST /api/v1/get-sensor-data", s.handleGetSensorData)
	s.mux.HandleFunc("POST /api/v1/save-monitor-conf", s.handleSaveMonitorConf)
	s.mux.HandleFunc("POST /api/v1/get-monitor-conf-list", s.handleGetMonitorConfList)

	s.mux.HandleFunc("GET /api/v1/devices/{id}/stream", s.handleDeviceStream)
}

// Start begins serving HTTP requests; it returns nil on a clean Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the versioned health endpoint's body.
type HealthResponse struct {
	Status  string            `json:"status" example:"ok"`
	Service string            `json:"service" example:"sensorhostd"`
	Version map[string]string `json:"version"`
}

// handleHealth godoc
//
//	@Summary	Health check with version information
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/api/v1/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "sensorhostd",
		Version: version.Map(),
	})
}
