package models

import "time"

// Vehicle represents a fleet truck
type Vehicle struct {
	ID          string    `json:"id"`
	PlateNumber string    `json:"plate_number"`
	Name        string    `json:"name,omitempty"`
	VehicleType string    `json:"vehicle_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RefuelEvent represents a single fuel record for a vehicle.
// OdometerKM and FuelLiters are nil when the value was not recorded.
type RefuelEvent struct {
	ID         string    `json:"id"`
	VehicleID  string    `json:"vehicle_id"`
	Created    time.Time `json:"created"`
	OdometerKM *float64  `json:"odometer_km"`
	FuelLiters *float64  `json:"fuel_liters"` // liters
}

// RefuelQuery represents query parameters for refuel searches
type RefuelQuery struct {
	VehicleID string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// FleetStats provides store-wide counts
type FleetStats struct {
	TotalVehicles    int64   `json:"total_vehicles"`
	TotalRefuels     int64   `json:"total_refuels"`
	TotalFuelLiters  float64 `json:"total_fuel_liters"`
	MissingOdometer  int64   `json:"missing_odometer"`
	MissingFuelValue int64   `json:"missing_fuel_value"`
}

// Float returns a pointer to v, for building optional readings.
func Float(v float64) *float64 {
	return &v
}
