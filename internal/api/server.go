package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"fleet-fuel-monitor/internal/db"
	"fleet-fuel-monitor/internal/metrics"
	"fleet-fuel-monitor/internal/models"
	"fleet-fuel-monitor/internal/parser"
	"fleet-fuel-monitor/internal/report"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the API server
type Server struct {
	db      *db.Database
	reports *report.Service
	router  *mux.Router
}

// NewServer creates a new API server
func NewServer(database *db.Database, reports *report.Service) *Server {
	metrics.Register()

	s := &Server{
		db:      database,
		reports: reports,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Vehicle endpoints
	s.router.HandleFunc("/api/v1/vehicles", s.handleListVehicles).Methods("GET")
	s.router.HandleFunc("/api/v1/vehicles", s.handleCreateVehicle).Methods("POST")
	s.router.HandleFunc("/api/v1/vehicles/{id}", s.handleGetVehicle).Methods("GET")

	// Refuel endpoints
	s.router.HandleFunc("/api/v1/refuels", s.handleQueryRefuels).Methods("GET")
	s.router.HandleFunc("/api/v1/refuels", s.handleCreateRefuel).Methods("POST")
	s.router.HandleFunc("/api/v1/refuels/batch", s.handleBatchRefuels).Methods("POST")

	// Efficiency endpoints
	s.router.HandleFunc("/api/v1/efficiency", s.handleEfficiency).Methods("GET")
	s.router.HandleFunc("/api/v1/efficiency/{vehicle_id}", s.handleVehicleEfficiency).Methods("GET")

	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")

	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware)
	s.router.Use(instrumentMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Middleware
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v [%s]", r.Method, r.URL.Path, time.Since(start), w.Header().Get("X-Request-ID"))
	})
}

// instrumentMiddleware records Prometheus request metrics by route template
func instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Offset  int   `json:"offset,omitempty"`
	QueryMs int64 `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.db.ListVehicles(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	respondJSON(w, http.StatusOK, vehicles)
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var v models.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if v.PlateNumber == "" {
		respondError(w, http.StatusBadRequest, "plate_number is required")
		return
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	if err := s.db.InsertVehicle(&v); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.invalidate(r.Context())

	respondJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	vehicle, err := s.db.GetVehicle(id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "vehicle not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, vehicle)
}

func (s *Server) handleQueryRefuels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := models.RefuelQuery{
		VehicleID: r.URL.Query().Get("vehicle_id"),
		Limit:     100,
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		q.Offset = n
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "start_time must be RFC3339")
			return
		}
		q.StartTime = t
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "end_time must be RFC3339")
			return
		}
		q.EndTime = t
	}

	results, err := s.db.QueryRefuels(q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.RefuelEvent{}
	}

	respondWithMeta(w, results, &meta{
		Total:   len(results),
		Limit:   q.Limit,
		Offset:  q.Offset,
		QueryMs: time.Since(start).Milliseconds(),
	})
}

// prepareRefuel fills defaults and validates an incoming event
func prepareRefuel(e *models.RefuelEvent, now time.Time) []string {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Created.IsZero() {
		e.Created = now
	}
	return parser.ValidateRefuel(e)
}

func (s *Server) handleCreateRefuel(w http.ResponseWriter, r *http.Request) {
	var e models.RefuelEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if errs := prepareRefuel(&e, time.Now().UTC()); len(errs) > 0 {
		respondError(w, http.StatusBadRequest, errs[0])
		return
	}

	if err := s.db.InsertRefuel(&e); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.invalidate(r.Context())

	respondJSON(w, http.StatusCreated, e)
}

func (s *Server) handleBatchRefuels(w http.ResponseWriter, r *http.Request) {
	var records []models.RefuelEvent
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON array")
		return
	}

	if len(records) == 0 {
		respondError(w, http.StatusBadRequest, "empty array")
		return
	}

	now := time.Now().UTC()
	for i := range records {
		if errs := prepareRefuel(&records[i], now); len(errs) > 0 {
			respondError(w, http.StatusBadRequest, "record "+strconv.Itoa(i)+": "+errs[0])
			return
		}
	}

	count, err := s.db.InsertRefuelBatch(records)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.invalidate(r.Context())

	respondJSON(w, http.StatusCreated, map[string]int64{"inserted": count})
}

func (s *Server) handleEfficiency(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var res report.Result
	if r.URL.Query().Get("refresh") == "true" {
		res = s.reports.Refresh(r.Context())
		w.Header().Set("X-Cache", "BYPASS")
	} else {
		var hit bool
		res, hit = s.reports.Report(r.Context())
		if hit {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
	}

	respondWithMeta(w, res, &meta{
		Total:   len(res.PerVehicle),
		QueryMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleVehicleEfficiency(w http.ResponseWriter, r *http.Request) {
	vehicleID := mux.Vars(r)["vehicle_id"]

	rec, ok := s.reports.Vehicle(r.Context(), vehicleID)
	if !ok {
		respondError(w, http.StatusNotFound, "no efficiency data for vehicle")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) invalidate(ctx context.Context) {
	if s.reports != nil {
		s.reports.Invalidate(ctx)
	}
}
