// Package efficiency computes per-vehicle and fleet-wide fuel efficiency
// from refuel records.
//
// A vehicle's efficiency is distance weighted: the distance of every valid
// segment (a consecutive pair of refuels ordered by creation time) is summed
// and divided by the fuel put in at the end of each of those segments.
package efficiency

import (
	"errors"
	"math"
	"sort"
	"strings"

	"fleet-fuel-monitor/internal/models"
)

// Config holds the plausibility bounds and tier thresholds.
// Comparisons are strict: a segment must satisfy MinSegmentKM < d < MaxSegmentKM
// and a vehicle is Excellent only when its km/L is above ExcellentAbove.
type Config struct {
	MinSegmentKM   float64 `json:"min_segment_km"`
	MaxSegmentKM   float64 `json:"max_segment_km"`
	ExcellentAbove float64 `json:"excellent_above"`
	GoodAbove      float64 `json:"good_above"`
	AverageAbove   float64 `json:"average_above"`
}

// DefaultConfig returns the fleet defaults
func DefaultConfig() Config {
	return Config{
		MinSegmentKM:   1,
		MaxSegmentKM:   2000,
		ExcellentAbove: 15,
		GoodAbove:      10,
		AverageAbove:   5,
	}
}

// Validate checks that bounds and thresholds are ordered
func (c Config) Validate() error {
	if c.MinSegmentKM < 0 {
		return errors.New("min segment distance cannot be negative")
	}
	if c.MaxSegmentKM <= c.MinSegmentKM {
		return errors.New("max segment distance must be greater than min segment distance")
	}
	if !(c.ExcellentAbove > c.GoodAbove && c.GoodAbove > c.AverageAbove) {
		return errors.New("thresholds must satisfy excellent > good > average")
	}
	return nil
}

// Classify returns the tier for a km/L figure
func (c Config) Classify(kmPerLiter float64) Category {
	switch {
	case kmPerLiter > c.ExcellentAbove:
		return Excellent
	case kmPerLiter > c.GoodAbove:
		return Good
	case kmPerLiter > c.AverageAbove:
		return Average
	default:
		return Poor
	}
}

// Record is the derived efficiency of one vehicle
type Record struct {
	VehicleID       string   `json:"vehicle_id"`
	Label           string   `json:"label"`
	KMPerLiter      float64  `json:"km_per_liter"`
	TotalDistanceKM float64  `json:"total_distance_km"`
	TotalFuelLiters float64  `json:"total_fuel_liters"`
	ValidSegments   int      `json:"valid_segments"`
	Category        Category `json:"category"`
}

// Summary holds fleet-wide statistics over vehicles with data
type Summary struct {
	Average          float64 `json:"average"`
	Maximum          float64 `json:"maximum"`
	Minimum          float64 `json:"minimum"`
	VehiclesWithData int     `json:"vehicles_with_data"`
}

// Report is the result of a single computation.
// When NoData is set no vehicle qualified and Summary is nil.
type Report struct {
	NoData      bool                  `json:"no_data"`
	PerVehicle  map[string]Record     `json:"per_vehicle"`
	Categorized map[Category][]Record `json:"categorized"`
	Summary     *Summary              `json:"summary"`
}

// CategoryCounts returns the number of vehicles in each tier
func (r Report) CategoryCounts() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		counts[c] = len(r.Categorized[c])
	}
	return counts
}

// Compute builds a Report from refuel events and the vehicles they belong to.
// Inputs are never modified. Events for vehicles missing from the vehicle list
// are ignored, and a zero Config means DefaultConfig.
func Compute(events []models.RefuelEvent, vehicles []models.Vehicle, cfg Config) Report {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}

	report := Report{
		PerVehicle:  make(map[string]Record),
		Categorized: make(map[Category][]Record, len(Categories)),
	}
	for _, c := range Categories {
		report.Categorized[c] = []Record{}
	}

	byVehicle := make(map[string][]models.RefuelEvent)
	for _, e := range events {
		byVehicle[e.VehicleID] = append(byVehicle[e.VehicleID], e)
	}

	var included []Record
	seen := make(map[string]bool, len(vehicles))
	for _, v := range vehicles {
		if v.ID == "" || seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		rec, ok := vehicleRecord(v, byVehicle[v.ID], cfg)
		if !ok {
			continue
		}
		report.PerVehicle[v.ID] = rec
		report.Categorized[rec.Category] = append(report.Categorized[rec.Category], rec)
		included = append(included, rec)
	}

	for _, c := range Categories {
		list := report.Categorized[c]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Label != list[j].Label {
				return list[i].Label < list[j].Label
			}
			return list[i].VehicleID < list[j].VehicleID
		})
	}

	if len(included) == 0 {
		report.NoData = true
		return report
	}

	sum := 0.0
	s := &Summary{
		Maximum:          included[0].KMPerLiter,
		Minimum:          included[0].KMPerLiter,
		VehiclesWithData: len(included),
	}
	for _, rec := range included {
		sum += rec.KMPerLiter
		s.Maximum = math.Max(s.Maximum, rec.KMPerLiter)
		s.Minimum = math.Min(s.Minimum, rec.KMPerLiter)
	}
	s.Average = sum / float64(len(included))
	report.Summary = s

	return report
}

// vehicleRecord walks one vehicle's refuels in creation order
func vehicleRecord(v models.Vehicle, events []models.RefuelEvent, cfg Config) (Record, bool) {
	if len(events) < 2 {
		return Record{}, false
	}

	ordered := make([]models.RefuelEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Created.Before(ordered[j].Created)
	})

	rec := Record{VehicleID: v.ID, Label: Label(v)}
	for i := 1; i < len(ordered); i++ {
		prevOdo, ok := reading(ordered[i-1].OdometerKM)
		if !ok {
			continue
		}
		curOdo, ok := reading(ordered[i].OdometerKM)
		if !ok {
			continue
		}
		fuel, ok := reading(ordered[i].FuelLiters)
		if !ok {
			continue
		}

		distance := curOdo - prevOdo
		if distance <= cfg.MinSegmentKM || distance >= cfg.MaxSegmentKM {
			continue
		}

		rec.TotalDistanceKM += distance
		rec.TotalFuelLiters += fuel
		rec.ValidSegments++
	}

	if rec.ValidSegments == 0 || rec.TotalFuelLiters <= 0 {
		return Record{}, false
	}

	rec.KMPerLiter = rec.TotalDistanceKM / rec.TotalFuelLiters
	rec.Category = cfg.Classify(rec.KMPerLiter)
	return rec, true
}

// reading treats missing, non-finite and negative values as absent
func reading(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v := *p
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// Label returns the display label for a vehicle
func Label(v models.Vehicle) string {
	if plate := strings.TrimSpace(v.PlateNumber); plate != "" {
		return plate
	}
	id := v.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "Vehicle " + id
}
