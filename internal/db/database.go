package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleet-fuel-monitor/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Database wraps the SQLite connection
type Database struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	// Enable WAL mode and other optimizations via connection string
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite works best with single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}

	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates tables and indexes
func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		plate_number TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		vehicle_type TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS refuel_events (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL,
		created DATETIME NOT NULL,
		odometer_km REAL,
		fuel_liters REAL
	);

	CREATE INDEX IF NOT EXISTS idx_refuel_vehicle_id ON refuel_events(vehicle_id);
	CREATE INDEX IF NOT EXISTS idx_refuel_created ON refuel_events(created);
	CREATE INDEX IF NOT EXISTS idx_refuel_vehicle_created ON refuel_events(vehicle_id, created);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// InsertVehicle adds a vehicle, replacing an existing one with the same ID
func (db *Database) InsertVehicle(v *models.Vehicle) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO vehicles (id, plate_number, name, vehicle_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plate_number = excluded.plate_number,
			name = excluded.name,
			vehicle_type = excluded.vehicle_type
	`
	_, err := db.conn.Exec(query, v.ID, v.PlateNumber, v.Name, v.VehicleType, v.CreatedAt)
	return err
}

// GetVehicle retrieves a vehicle by ID
func (db *Database) GetVehicle(id string) (*models.Vehicle, error) {
	query := `SELECT id, plate_number, name, vehicle_type, created_at FROM vehicles WHERE id = ?`

	var v models.Vehicle
	err := db.conn.QueryRow(query, id).Scan(&v.ID, &v.PlateNumber, &v.Name, &v.VehicleType, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVehicles returns all vehicles
func (db *Database) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	query := `SELECT id, plate_number, name, vehicle_type, created_at FROM vehicles ORDER BY plate_number, id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.ID, &v.PlateNumber, &v.Name, &v.VehicleType, &v.CreatedAt); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

const insertRefuelSQL = `
	INSERT OR IGNORE INTO refuel_events (id, vehicle_id, created, odometer_km, fuel_liters)
	VALUES (?, ?, ?, ?, ?)
`

// InsertRefuel adds a single refuel event. Events are immutable, so an
// event whose ID already exists is left untouched.
func (db *Database) InsertRefuel(e *models.RefuelEvent) error {
	_, err := db.conn.Exec(insertRefuelSQL,
		e.ID, e.VehicleID, e.Created.UTC(), nullFloat(e.OdometerKM), nullFloat(e.FuelLiters),
	)
	return err
}

// InsertRefuelBatch efficiently inserts multiple refuel events and returns
// how many were new
func (db *Database) InsertRefuelBatch(records []models.RefuelEvent) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertRefuelSQL)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var count int64
	for _, e := range records {
		res, err := stmt.Exec(e.ID, e.VehicleID, e.Created.UTC(), nullFloat(e.OdometerKM), nullFloat(e.FuelLiters))
		if err != nil {
			return count, fmt.Errorf("insert refuel %s: %w", e.ID, err)
		}
		n, _ := res.RowsAffected()
		count += n
	}

	return count, tx.Commit()
}

// QueryRefuels retrieves refuel events based on query parameters, newest first
func (db *Database) QueryRefuels(q models.RefuelQuery) ([]models.RefuelEvent, error) {
	var conditions []string
	var args []interface{}

	baseQuery := `SELECT id, vehicle_id, created, odometer_km, fuel_liters FROM refuel_events`

	if q.VehicleID != "" {
		conditions = append(conditions, "vehicle_id = ?")
		args = append(args, q.VehicleID)
	}
	if !q.StartTime.IsZero() {
		conditions = append(conditions, "created >= ?")
		args = append(args, q.StartTime.UTC())
	}
	if !q.EndTime.IsZero() {
		conditions = append(conditions, "created <= ?")
		args = append(args, q.EndTime.UTC())
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	baseQuery += " ORDER BY created DESC, id"

	if q.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			baseQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := db.conn.Query(baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRefuels(rows)
}

// ListRefuelEvents returns every refuel event, oldest first
func (db *Database) ListRefuelEvents(ctx context.Context) ([]models.RefuelEvent, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, vehicle_id, created, odometer_km, fuel_liters FROM refuel_events ORDER BY created, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRefuels(rows)
}

func scanRefuels(rows *sql.Rows) ([]models.RefuelEvent, error) {
	var results []models.RefuelEvent
	for rows.Next() {
		var e models.RefuelEvent
		var odo, fuel sql.NullFloat64

		if err := rows.Scan(&e.ID, &e.VehicleID, &e.Created, &odo, &fuel); err != nil {
			return nil, err
		}
		if odo.Valid {
			e.OdometerKM = models.Float(odo.Float64)
		}
		if fuel.Valid {
			e.FuelLiters = models.Float(fuel.Float64)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// GetStats returns store-wide counts
func (db *Database) GetStats() (*models.FleetStats, error) {
	var s models.FleetStats

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM vehicles").Scan(&s.TotalVehicles); err != nil {
		return nil, err
	}

	err := db.conn.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(fuel_liters), 0),
			COALESCE(SUM(CASE WHEN odometer_km IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN fuel_liters IS NULL THEN 1 ELSE 0 END), 0)
		FROM refuel_events
	`).Scan(&s.TotalRefuels, &s.TotalFuelLiters, &s.MissingOdometer, &s.MissingFuelValue)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
