package efficiency

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"

	"fleet-fuel-monitor/internal/models"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func at(h int) time.Time {
	return base.Add(time.Duration(h) * time.Hour)
}

func refuel(vehicleID string, h int, odo, fuel *float64) models.RefuelEvent {
	return models.RefuelEvent{VehicleID: vehicleID, Created: at(h), OdometerKM: odo, FuelLiters: fuel}
}

var f = models.Float

func TestScenarioAverageAtBoundary(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v1", 0, f(1000), nil),
		refuel("v1", 1, f(1100), f(10)),
	}
	vehicles := []models.Vehicle{{ID: "v1", PlateNumber: "ABC-123"}}

	r := Compute(events, vehicles, DefaultConfig())

	rec, ok := r.PerVehicle["v1"]
	if !ok {
		t.Fatal("expected v1 in per-vehicle results")
	}
	if rec.ValidSegments != 1 || rec.TotalDistanceKM != 100 || rec.TotalFuelLiters != 10 {
		t.Errorf("unexpected totals: %+v", rec)
	}
	if rec.KMPerLiter != 10.0 {
		t.Errorf("expected 10 km/L, got %v", rec.KMPerLiter)
	}
	if rec.Category != Average {
		t.Errorf("expected average, got %s", rec.Category)
	}
	if rec.Label != "ABC-123" {
		t.Errorf("expected plate label, got %q", rec.Label)
	}
}

func TestScenarioExcellent(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v2", 0, f(5000), nil),
		refuel("v2", 1, f(5050), f(2)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v2", PlateNumber: "XYZ-9"}}, DefaultConfig())

	rec := r.PerVehicle["v2"]
	if rec.KMPerLiter != 25.0 {
		t.Errorf("expected 25 km/L, got %v", rec.KMPerLiter)
	}
	if rec.Category != Excellent {
		t.Errorf("expected excellent, got %s", rec.Category)
	}
	if len(r.Categorized[Excellent]) != 1 {
		t.Errorf("expected one excellent vehicle, got %d", len(r.Categorized[Excellent]))
	}
}

func TestSingleEventExcluded(t *testing.T) {
	events := []models.RefuelEvent{refuel("v3", 0, f(1000), f(40))}
	r := Compute(events, []models.Vehicle{{ID: "v3"}}, DefaultConfig())

	if _, ok := r.PerVehicle["v3"]; ok {
		t.Error("vehicle with a single refuel must be excluded")
	}
	if !r.NoData {
		t.Error("expected no-data report")
	}
}

func TestNoDataReport(t *testing.T) {
	vehicles := []models.Vehicle{{ID: "v1", PlateNumber: "A"}, {ID: "v2", PlateNumber: "B"}}

	for name, events := range map[string][]models.RefuelEvent{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			r := Compute(events, vehicles, DefaultConfig())
			if !r.NoData {
				t.Fatal("expected no-data report")
			}
			if r.Summary != nil {
				t.Errorf("summary must be absent, got %+v", r.Summary)
			}
			if len(r.PerVehicle) != 0 {
				t.Errorf("expected empty per-vehicle map, got %d entries", len(r.PerVehicle))
			}
			for _, c := range Categories {
				if got, ok := r.Categorized[c]; !ok || len(got) != 0 {
					t.Errorf("category %s: expected present and empty, got %v", c, got)
				}
			}
		})
	}

	if r := Compute(nil, nil, DefaultConfig()); !r.NoData {
		t.Error("nil inputs must produce no-data report")
	}
}

func TestSpuriousJumpExcluded(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v4", 0, f(1000), nil),
		refuel("v4", 1, f(50000), f(5)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v4"}}, DefaultConfig())

	if _, ok := r.PerVehicle["v4"]; ok {
		t.Error("vehicle with only an implausible segment must be excluded")
	}
	if !r.NoData {
		t.Error("expected no-data report")
	}
}

func TestSegmentDistanceBounds(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		valid    bool
	}{
		{"exactly min", 1, false},
		{"just above min", 1.5, true},
		{"typical", 420, true},
		{"just below max", 1999.9, true},
		{"exactly max", 2000, false},
		{"zero", 0, false},
		{"negative", -50, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []models.RefuelEvent{
				refuel("v", 0, f(10000), f(30)),
				refuel("v", 1, f(10000+tt.distance), f(30)),
			}
			r := Compute(events, []models.Vehicle{{ID: "v"}}, DefaultConfig())
			_, ok := r.PerVehicle["v"]
			if ok != tt.valid {
				t.Errorf("distance %v: included=%v, want %v", tt.distance, ok, tt.valid)
			}
		})
	}
}

func TestClassifyBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		kmpl float64
		want Category
	}{
		{25, Excellent},
		{15.0001, Excellent},
		{15, Good},
		{10.5, Good},
		{10, Average},
		{5.01, Average},
		{5, Poor},
		{0.5, Poor},
	}
	for _, tt := range tests {
		if got := cfg.Classify(tt.kmpl); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.kmpl, got, tt.want)
		}
	}
}

func TestBoundaryEfficienciesThroughCompute(t *testing.T) {
	// distance 150 with fuel 10, 15 and 30 gives exactly 15, 10 and 5 km/L
	events := []models.RefuelEvent{
		refuel("a", 0, f(100), nil), refuel("a", 1, f(250), f(10)),
		refuel("b", 0, f(100), nil), refuel("b", 1, f(250), f(15)),
		refuel("c", 0, f(100), nil), refuel("c", 1, f(250), f(30)),
	}
	vehicles := []models.Vehicle{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	r := Compute(events, vehicles, DefaultConfig())

	want := map[string]Category{"a": Good, "b": Average, "c": Poor}
	for id, cat := range want {
		if got := r.PerVehicle[id].Category; got != cat {
			t.Errorf("vehicle %s: got %s, want %s", id, got, cat)
		}
	}
}

func TestDistanceWeightedAcrossSegments(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v", 2, f(1300), f(20)),
		refuel("v", 0, f(1000), f(50)),
		refuel("v", 1, f(1100), f(10)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v", PlateNumber: "P"}}, DefaultConfig())

	rec := r.PerVehicle["v"]
	if rec.ValidSegments != 2 {
		t.Fatalf("expected 2 segments, got %d", rec.ValidSegments)
	}
	if rec.TotalDistanceKM != 300 || rec.TotalFuelLiters != 30 {
		t.Errorf("expected 300 km / 30 L, got %v km / %v L", rec.TotalDistanceKM, rec.TotalFuelLiters)
	}
	if rec.KMPerLiter != 10 {
		t.Errorf("expected 10 km/L, got %v", rec.KMPerLiter)
	}
}

func TestMalformedReadingsSkipOnlyTheirSegment(t *testing.T) {
	// negative fuel, a NaN odometer and infinite fuel each void only the
	// segments they touch; 1700 -> 1900 survives
	events := []models.RefuelEvent{
		refuel("v", 0, f(1000), nil),
		refuel("v", 1, f(1200), f(-5)),
		refuel("v", 2, f(math.NaN()), f(20)),
		refuel("v", 3, f(1500), f(10)),
		refuel("v", 4, f(1700), f(math.Inf(1))),
		refuel("v", 5, f(1900), f(20)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v"}}, DefaultConfig())

	rec, ok := r.PerVehicle["v"]
	if !ok {
		t.Fatal("vehicle should keep its valid segment")
	}
	if rec.ValidSegments != 1 || rec.TotalDistanceKM != 200 || rec.TotalFuelLiters != 20 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestNullOdometerBreaksChain(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v", 0, f(1000), f(10)),
		refuel("v", 1, nil, f(10)),
		refuel("v", 2, f(1400), f(10)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v"}}, DefaultConfig())

	if _, ok := r.PerVehicle["v"]; ok {
		t.Error("pairs are consecutive; a missing odometer must not be bridged")
	}
}

func TestZeroFuelExcluded(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v", 0, f(1000), nil),
		refuel("v", 1, f(1100), f(0)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v"}}, DefaultConfig())
	if !r.NoData {
		t.Error("a vehicle with no fuel consumed must be excluded")
	}
}

func TestSummaryStatistics(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v1", 0, f(1000), nil), refuel("v1", 1, f(1100), f(10)), // 10
		refuel("v2", 0, f(5000), nil), refuel("v2", 1, f(5050), f(2)), // 25
		refuel("v3", 0, f(200), nil), refuel("v3", 1, f(300), f(25)), // 4
	}
	vehicles := []models.Vehicle{{ID: "v1"}, {ID: "v2"}, {ID: "v3"}, {ID: "v9"}}
	r := Compute(events, vehicles, DefaultConfig())

	if r.NoData || r.Summary == nil {
		t.Fatal("expected summary")
	}
	s := r.Summary
	if s.VehiclesWithData != 3 {
		t.Errorf("expected 3 vehicles with data, got %d", s.VehiclesWithData)
	}
	if s.Maximum != 25 || s.Minimum != 4 {
		t.Errorf("unexpected max/min: %v/%v", s.Maximum, s.Minimum)
	}
	if s.Average != 13 {
		t.Errorf("expected average 13, got %v", s.Average)
	}
}

func TestCategorizationIsPartition(t *testing.T) {
	var events []models.RefuelEvent
	var vehicles []models.Vehicle
	for i, fuel := range []float64{2, 5, 8, 12, 20, 40, 60} {
		id := string(rune('a' + i))
		vehicles = append(vehicles, models.Vehicle{ID: id})
		events = append(events,
			refuel(id, 0, f(1000), nil),
			refuel(id, 1, f(1150), f(fuel)),
		)
	}
	r := Compute(events, vehicles, DefaultConfig())

	seen := make(map[string]int)
	for _, c := range Categories {
		for _, rec := range r.Categorized[c] {
			seen[rec.VehicleID]++
			if rec.Category != c {
				t.Errorf("vehicle %s filed under %s but classified %s", rec.VehicleID, c, rec.Category)
			}
		}
	}
	if len(seen) != len(r.PerVehicle) {
		t.Errorf("categorized %d vehicles, per-vehicle has %d", len(seen), len(r.PerVehicle))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("vehicle %s appears in %d categories", id, n)
		}
	}
}

func TestSharedPlateDoesNotCollide(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v1", 0, f(1000), nil), refuel("v1", 1, f(1100), f(10)),
		refuel("v2", 0, f(1000), nil), refuel("v2", 1, f(1100), f(5)),
	}
	vehicles := []models.Vehicle{
		{ID: "v1", PlateNumber: "DUP-1"},
		{ID: "v2", PlateNumber: "DUP-1"},
	}
	r := Compute(events, vehicles, DefaultConfig())
	if len(r.PerVehicle) != 2 {
		t.Fatalf("expected both vehicles, got %d", len(r.PerVehicle))
	}
	if r.Summary.VehiclesWithData != 2 {
		t.Errorf("expected 2 vehicles with data, got %d", r.Summary.VehiclesWithData)
	}
}

func TestLabelFallback(t *testing.T) {
	tests := []struct {
		v    models.Vehicle
		want string
	}{
		{models.Vehicle{ID: "abc", PlateNumber: "NGT-401"}, "NGT-401"},
		{models.Vehicle{ID: "k3x9q2lm0d8f7e1", PlateNumber: "  "}, "Vehicle k3x9q2lm"},
		{models.Vehicle{ID: "short"}, "Vehicle short"},
	}
	for _, tt := range tests {
		if got := Label(tt.v); got != tt.want {
			t.Errorf("Label(%+v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestEventsForUnknownVehiclesIgnored(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("ghost", 0, f(1000), nil),
		refuel("ghost", 1, f(1100), f(10)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v1"}}, DefaultConfig())
	if !r.NoData {
		t.Error("events without a matching vehicle must not contribute")
	}
}

func TestIdempotentAndPure(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v1", 3, f(1300), f(20)),
		refuel("v1", 1, f(1000), nil),
		refuel("v1", 2, f(1100), f(10)),
		refuel("v2", 1, f(5000), nil),
		refuel("v2", 2, f(5050), f(2)),
	}
	vehicles := []models.Vehicle{{ID: "v1", PlateNumber: "B"}, {ID: "v2", PlateNumber: "A"}}

	eventsBefore := make([]models.RefuelEvent, len(events))
	copy(eventsBefore, events)
	vehiclesBefore := make([]models.Vehicle, len(vehicles))
	copy(vehiclesBefore, vehicles)

	first := Compute(events, vehicles, DefaultConfig())
	second := Compute(events, vehicles, DefaultConfig())

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated computation produced different reports")
	}
	if !reflect.DeepEqual(events, eventsBefore) {
		t.Error("events were modified")
	}
	if !reflect.DeepEqual(vehicles, vehiclesBefore) {
		t.Error("vehicles were modified")
	}
	if *events[1].OdometerKM != 1000 {
		t.Error("odometer reading was modified")
	}
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v", 0, f(1000), nil),
		refuel("v", 1, f(1100), f(10)),
	}
	vehicles := []models.Vehicle{{ID: "v"}}
	if got := Compute(events, vehicles, Config{}); !reflect.DeepEqual(got, Compute(events, vehicles, DefaultConfig())) {
		t.Error("zero config should behave like DefaultConfig")
	}
}

func TestCustomThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSegmentKM = 100000
	cfg.ExcellentAbove = 30

	events := []models.RefuelEvent{
		refuel("v", 0, f(1000), nil),
		refuel("v", 1, f(50000), f(2000)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v"}}, cfg)
	rec, ok := r.PerVehicle["v"]
	if !ok {
		t.Fatal("raised max segment should admit the long segment")
	}
	if rec.Category != Good {
		t.Errorf("24.5 km/L with excellent above 30 should be good, got %s", rec.Category)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []Config{
		{MinSegmentKM: -1, MaxSegmentKM: 10, ExcellentAbove: 3, GoodAbove: 2, AverageAbove: 1},
		{MinSegmentKM: 10, MaxSegmentKM: 10, ExcellentAbove: 3, GoodAbove: 2, AverageAbove: 1},
		{MinSegmentKM: 1, MaxSegmentKM: 10, ExcellentAbove: 2, GoodAbove: 2, AverageAbove: 1},
		{MinSegmentKM: 1, MaxSegmentKM: 10, ExcellentAbove: 3, GoodAbove: 1, AverageAbove: 2},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("config %d should be rejected", i)
		}
	}
}

func TestCategoriesSortedByLabel(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v1", 0, f(1000), nil), refuel("v1", 1, f(1100), f(20)),
		refuel("v2", 0, f(1000), nil), refuel("v2", 1, f(1100), f(25)),
	}
	vehicles := []models.Vehicle{{ID: "v1", PlateNumber: "ZZ"}, {ID: "v2", PlateNumber: "AA"}}
	r := Compute(events, vehicles, DefaultConfig())

	poor := r.Categorized[Poor]
	if len(poor) != 2 || poor[0].Label != "AA" || poor[1].Label != "ZZ" {
		t.Errorf("expected poor tier sorted by label, got %+v", poor)
	}
}

func TestReportJSONUsesCategoryNames(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v", 0, f(5000), nil),
		refuel("v", 1, f(5050), f(2)),
	}
	r := Compute(events, []models.Vehicle{{ID: "v"}}, DefaultConfig())

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded struct {
		Categorized map[string][]map[string]interface{} `json:"categorized"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(decoded.Categorized["excellent"]) != 1 {
		t.Errorf("expected excellent key in JSON, got %s", b)
	}
	if got := decoded.Categorized["excellent"][0]["category"]; got != "excellent" {
		t.Errorf("expected category name in record, got %v", got)
	}
}

func TestCategoryCounts(t *testing.T) {
	events := []models.RefuelEvent{
		refuel("v", 0, f(5000), nil),
		refuel("v", 1, f(5050), f(2)),
	}
	counts := Compute(events, []models.Vehicle{{ID: "v"}}, DefaultConfig()).CategoryCounts()
	if counts[Excellent] != 1 || counts[Good] != 0 || counts[Average] != 0 || counts[Poor] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseCategory("stellar"); err == nil {
		t.Error("expected error for unknown category")
	}
}
