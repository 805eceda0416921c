package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/geojson"
	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
)

// Detail messages for missing data files.
const (
	PointsNotFoundDetail   = "Vulnerability data not found. Please run data generation."
	PriorityNotFoundDetail = "Tree priority data not found. Please run priority computation."
)

const initialZoom = 12

// DataService serves the collections behind the API routes.
type DataService interface {
	sharedobs.ReadinessChecker
	VulnerabilityPoints(ctx context.Context) (domain.Collection, error)
	TreePriority(ctx context.Context) (domain.Collection, error)
}

// Location is a named place shown in the map's location picker.
type Location struct {
	Name      string  `json:"name"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// CityInfo describes the configured region for /api/config.
type CityInfo struct {
	Name      string
	BBox      [4]float64 // min lon, min lat, max lon, max lat
	Locations []Location
}

// Server exposes the API, health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	city       CityInfo
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /api routes plus /healthz,
// /readyz, and /metrics.
func NewServer(addr string, data DataService, city CityInfo, metrics *observability.Metrics, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		city:    city,
		metrics: metrics,
		logger:  logger,
	}

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(data))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.countRequests)
		r.Get("/config", s.handleConfig)
		r.Get("/health", s.handleAPIHealth)
		r.Get("/vulnerability-points", s.handleCollection(data.VulnerabilityPoints, PointsNotFoundDetail))
		r.Get("/tree-priority", s.handleCollection(data.TreePriority, PriorityNotFoundDetail))
	})

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

func (s *Server) handleAPIHealth(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type configResponse struct {
	CityName    string      `json:"city_name"`
	BBox        [4]float64  `json:"bbox"`
	InitialView initialView `json:"initial_view"`
	Locations   []Location  `json:"locations"`
}

type initialView struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Zoom      int     `json:"zoom"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	b := s.city.BBox
	locations := s.city.Locations
	if locations == nil {
		locations = []Location{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, configResponse{
		CityName: s.city.Name,
		BBox:     b,
		InitialView: initialView{
			Longitude: (b[0] + b[2]) / 2,
			Latitude:  (b[1] + b[3]) / 2,
			Zoom:      initialZoom,
		},
		Locations: locations,
	})
}

func (s *Server) handleCollection(load func(context.Context) (domain.Collection, error), notFound string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := load(r.Context())
		if err != nil {
			if errors.Is(err, domain.ErrDataNotFound) {
				sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"detail": notFound})
				return
			}
			s.logger.Error("load collection failed", "path", r.URL.Path, "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to load data."})
			return
		}

		body, err := geojson.Marshal(c)
		if err != nil {
			s.logger.Error("encode collection failed", "path", r.URL.Path, "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to encode data."})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// countRequests records API requests by route pattern and status code.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.APIRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
