// Package report fetches fleet data from a source, runs the efficiency
// aggregation and keeps the latest result cached for the API.
package report

import (
	"context"
	"log"
	"time"

	"fleet-fuel-monitor/internal/cache"
	"fleet-fuel-monitor/internal/efficiency"
	"fleet-fuel-monitor/internal/metrics"
	"fleet-fuel-monitor/internal/models"
)

// Source supplies the vehicles and refuel events a report is built from
type Source interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	ListRefuelEvents(ctx context.Context) ([]models.RefuelEvent, error)
}

// Result is an efficiency report with provenance.
// Degraded is set when a fetch failed and an empty list stood in for it.
type Result struct {
	efficiency.Report
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`
	Degraded    bool      `json:"degraded"`
}

// Service builds efficiency reports
type Service struct {
	name   string
	src    Source
	cache  *cache.Cache
	ttl    time.Duration
	config efficiency.Config
	now    func() time.Time
}

// NewService creates a report service; c may be nil to disable caching
func NewService(name string, src Source, c *cache.Cache, ttl time.Duration, cfg efficiency.Config) *Service {
	return &Service{
		name:   name,
		src:    src,
		cache:  c,
		ttl:    ttl,
		config: cfg,
		now:    time.Now,
	}
}

func (s *Service) cacheKey() string {
	return "report:" + s.name
}

// Report returns the cached report if present, computing it otherwise.
// The second return value reports a cache hit.
func (s *Service) Report(ctx context.Context) (Result, bool) {
	if s.cache != nil {
		var cached Result
		if s.cache.Get(ctx, s.cacheKey(), &cached) {
			metrics.ReportCacheHitsTotal.Inc()
			return cached, true
		}
	}
	return s.Refresh(ctx), false
}

// Refresh recomputes the report from the source and updates the cache
func (s *Service) Refresh(ctx context.Context) Result {
	start := time.Now()
	defer func() {
		metrics.ReportComputeDuration.Observe(time.Since(start).Seconds())
	}()

	degraded := false

	vehicles, err := s.src.ListVehicles(ctx)
	if err != nil {
		log.Printf("WARN: report %s: fetch vehicles failed: %v", s.name, err)
		metrics.SourceFetchFailuresTotal.WithLabelValues(s.name, "vehicles").Inc()
		vehicles = []models.Vehicle{}
		degraded = true
	}

	events, err := s.src.ListRefuelEvents(ctx)
	if err != nil {
		log.Printf("WARN: report %s: fetch refuel events failed: %v", s.name, err)
		metrics.SourceFetchFailuresTotal.WithLabelValues(s.name, "refuel_events").Inc()
		events = []models.RefuelEvent{}
		degraded = true
	}

	res := Result{
		Report:      efficiency.Compute(events, vehicles, s.config),
		Source:      s.name,
		GeneratedAt: s.now().UTC(),
		Degraded:    degraded,
	}
	metrics.ReportComputationsTotal.WithLabelValues(s.name).Inc()
	observe(res.Report)

	if s.cache != nil && !degraded {
		if err := s.cache.Set(ctx, s.cacheKey(), res, s.ttl); err != nil {
			log.Printf("WARN: report %s: cache set failed: %v", s.name, err)
		}
	}

	return res
}

// Invalidate drops the cached report so the next call recomputes it
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey()); err != nil {
		log.Printf("WARN: report %s: cache delete failed: %v", s.name, err)
	}
}

// Vehicle returns one vehicle's record from the current report
func (s *Service) Vehicle(ctx context.Context, vehicleID string) (efficiency.Record, bool) {
	res, _ := s.Report(ctx)
	rec, ok := res.PerVehicle[vehicleID]
	return rec, ok
}

// StartPoller refreshes the report every interval until ctx is cancelled.
// The first refresh runs immediately.
func (s *Service) StartPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Printf("INFO: report polling disabled")
		return
	}

	go func() {
		s.refreshLogged(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshLogged(ctx)
			}
		}
	}()
	log.Printf("INFO: report polling started (interval: %v, source: %s)", interval, s.name)
}

func (s *Service) refreshLogged(ctx context.Context) {
	res := s.Refresh(ctx)
	if res.NoData {
		log.Printf("INFO: report %s: no vehicles with efficiency data", s.name)
		return
	}
	log.Printf("INFO: report %s: %d vehicles, avg %.2f km/L",
		s.name, res.Summary.VehiclesWithData, res.Summary.Average)
}

// observe publishes the report to the efficiency gauges
func observe(r efficiency.Report) {
	for c, n := range r.CategoryCounts() {
		metrics.VehiclesByCategory.WithLabelValues(c.String()).Set(float64(n))
	}
	if r.Summary == nil {
		metrics.FleetEfficiency.Reset()
		return
	}
	metrics.FleetEfficiency.WithLabelValues("average").Set(r.Summary.Average)
	metrics.FleetEfficiency.WithLabelValues("maximum").Set(r.Summary.Maximum)
	metrics.FleetEfficiency.WithLabelValues("minimum").Set(r.Summary.Minimum)
}
