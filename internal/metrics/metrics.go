package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the API and the efficiency report
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetfuel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetfuel_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	ReportComputationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetfuel_report_computations_total",
			Help: "Total number of efficiency report computations",
		},
		[]string{"source"},
	)

	ReportCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetfuel_report_cache_hits_total",
			Help: "Total number of efficiency reports served from cache",
		},
	)

	ReportComputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetfuel_report_compute_duration_seconds",
			Help:    "Duration of fetching data and computing the efficiency report",
			Buckets: prometheus.DefBuckets,
		},
	)

	SourceFetchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetfuel_source_fetch_failures_total",
			Help: "Total number of failed fetches from the report data source",
		},
		[]string{"source", "kind"},
	)

	FleetEfficiency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetfuel_fleet_efficiency_km_per_liter",
			Help: "Fleet-wide fuel efficiency from the latest report",
		},
		[]string{"stat"},
	)

	VehiclesByCategory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetfuel_vehicles_by_category",
			Help: "Number of vehicles in each efficiency tier in the latest report",
		},
		[]string{"category"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry.
// It is safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(ReportComputationsTotal)
		prometheus.MustRegister(ReportCacheHitsTotal)
		prometheus.MustRegister(ReportComputeDuration)
		prometheus.MustRegister(SourceFetchFailuresTotal)
		prometheus.MustRegister(FleetEfficiency)
		prometheus.MustRegister(VehiclesByCategory)
	})
}
