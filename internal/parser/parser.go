package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"fleet-fuel-monitor/internal/models"
)

// column aliases accepted in CSV headers and JSON objects
var (
	idKeys       = []string{"id"}
	vehicleKeys  = []string{"vehicle_id", "truck_id", "truck"}
	createdKeys  = []string{"created", "timestamp", "created_at"}
	odometerKeys = []string{"odometer_km", "odometer_reading", "odometer"}
	fuelKeys     = []string{"fuel_liters", "fuel_amount", "fuel"}
)

// Parser handles parsing of refuel record files
type Parser struct {
	format string
}

// NewParser creates a new parser with the specified format
func NewParser(format string) *Parser {
	return &Parser{format: format}
}

// ParseFile parses a refuel record file
func (p *Parser) ParseFile(filename string) ([]models.RefuelEvent, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse parses refuel records from r in the parser's format
func (p *Parser) Parse(r io.Reader) ([]models.RefuelEvent, error) {
	switch strings.ToLower(p.format) {
	case "csv":
		return p.parseCSV(r)
	case "json":
		return p.parseJSON(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", p.format)
	}
}

// parseCSV parses CSV formatted refuel records
func (p *Parser) parseCSV(r io.Reader) ([]models.RefuelEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable fields

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	indices := make(map[string]int)
	for i, h := range header {
		indices[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var results []models.RefuelEvent
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			return results, fmt.Errorf("error at line %d: %w", lineNum, err)
		}

		fields := make(map[string]string, len(indices))
		for key, idx := range indices {
			if idx < len(record) {
				fields[key] = strings.TrimSpace(record[idx])
			}
		}

		e, err := fieldsToRefuel(fields)
		if err != nil {
			log.Printf("Warning: line %d: %v", lineNum, err)
			continue
		}
		results = append(results, e)
	}

	return results, nil
}

// parseJSON parses a JSON array or newline-delimited JSON objects
func (p *Parser) parseJSON(r io.Reader) ([]models.RefuelEvent, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []map[string]interface{}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON array: %w", err)
		}
		var results []models.RefuelEvent
		for i, obj := range raw {
			e, err := fieldsToRefuel(stringFields(obj))
			if err != nil {
				log.Printf("Warning: item %d: %v", i, err)
				continue
			}
			results = append(results, e)
		}
		return results, nil
	}

	return p.parseJSONLines(bytes.NewReader(trimmed))
}

// parseJSONLines parses newline-delimited JSON
func (p *Parser) parseJSONLines(r io.Reader) ([]models.RefuelEvent, error) {
	var results []models.RefuelEvent
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = strings.TrimSuffix(line, ",")

		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			log.Printf("Warning: line %d: %v", lineNum, err)
			continue
		}
		e, err := fieldsToRefuel(stringFields(obj))
		if err != nil {
			log.Printf("Warning: line %d: %v", lineNum, err)
			continue
		}
		results = append(results, e)
	}

	return results, scanner.Err()
}

// stringFields flattens decoded JSON values to their text form
func stringFields(obj map[string]interface{}) map[string]string {
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		key := strings.ToLower(strings.TrimSpace(k))
		switch val := v.(type) {
		case nil:
			fields[key] = ""
		case string:
			fields[key] = strings.TrimSpace(val)
		case float64:
			fields[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[key] = ""
		default:
			fields[key] = fmt.Sprint(val)
		}
	}
	return fields
}

func lookup(fields map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// fieldsToRefuel converts a parsed row to a RefuelEvent
func fieldsToRefuel(fields map[string]string) (models.RefuelEvent, error) {
	var e models.RefuelEvent

	e.ID = lookup(fields, idKeys)
	e.VehicleID = lookup(fields, vehicleKeys)
	if e.VehicleID == "" {
		return e, fmt.Errorf("missing vehicle_id")
	}

	tsStr := lookup(fields, createdKeys)
	if tsStr != "" {
		ts, err := ParseTimestamp(tsStr)
		if err != nil {
			return e, fmt.Errorf("invalid created: %w", err)
		}
		e.Created = ts
	}

	e.OdometerKM = ParseReading(lookup(fields, odometerKeys))
	e.FuelLiters = ParseReading(lookup(fields, fuelKeys))

	return e, nil
}

// ParseReading parses an optional numeric reading. Blank, non-numeric,
// non-finite and negative values are reported as absent.
func ParseReading(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil
	}
	return &v
}

// ParseTimestamp tries multiple timestamp formats
func ParseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.000Z", // PocketBase record timestamps
		"2006-01-02 15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02 15:04:05",
		"01/02/2006 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(ts, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

// ValidateRefuel validates a refuel event
func ValidateRefuel(e *models.RefuelEvent) []string {
	var errors []string

	if e.VehicleID == "" {
		errors = append(errors, "vehicle_id is required")
	}
	if e.FuelLiters != nil && *e.FuelLiters < 0 {
		errors = append(errors, "fuel_liters cannot be negative")
	}
	if e.OdometerKM != nil && *e.OdometerKM < 0 {
		errors = append(errors, "odometer_km cannot be negative")
	}
	if e.OdometerKM == nil && e.FuelLiters == nil {
		errors = append(errors, "at least one of odometer_km or fuel_liters is required")
	}

	return errors
}
