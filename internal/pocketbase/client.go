// Package pocketbase reads fleet collections from a PocketBase backend
// over its REST records API.
package pocketbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"fleet-fuel-monitor/internal/models"
	"fleet-fuel-monitor/internal/parser"
)

const defaultPerPage = 500

// Config describes how to reach PocketBase
type Config struct {
	BaseURL           string
	AuthCollection    string // auth collection used for password auth
	Identity          string // email or username; empty means unauthenticated
	Password          string
	VehicleCollection string
	FuelCollection    string
	Timeout           time.Duration
	PerPage           int
}

// Client is a minimal PocketBase records client with token caching
type Client struct {
	baseURL           string
	authCollection    string
	identity          string
	password          string
	vehicleCollection string
	fuelCollection    string
	perPage           int

	mu    sync.Mutex
	token string
	exp   time.Time
	http  *http.Client
}

// NewClient creates a client for cfg
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	return &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		authCollection:    cfg.AuthCollection,
		identity:          cfg.Identity,
		password:          cfg.Password,
		vehicleCollection: cfg.VehicleCollection,
		fuelCollection:    cfg.FuelCollection,
		perPage:           perPage,
		http:              &http.Client{Timeout: timeout},
	}
}

// authHeader returns the Authorization value, refreshing the token when it
// is missing or close to expiry
func (c *Client) authHeader(ctx context.Context) (string, error) {
	if c.identity == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.exp) > 60*time.Second {
		return "Bearer " + c.token, nil
	}

	b, _ := json.Marshal(map[string]string{
		"identity": c.identity,
		"password": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/collections/%s/auth-with-password", c.baseURL, c.authCollection),
		bytes.NewReader(b),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("pocketbase auth failed: %s: %s", resp.Status, strings.TrimSpace(string(rb)))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("pocketbase auth token missing")
	}

	// PocketBase tokens default to a longer lifetime; refresh well before it
	c.token = out.Token
	c.exp = time.Now().Add(50 * time.Minute)
	return "Bearer " + c.token, nil
}

// listPage is the PocketBase list response envelope
type listPage struct {
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	TotalItems int               `json:"totalItems"`
	TotalPages int               `json:"totalPages"`
	Items      []json.RawMessage `json:"items"`
}

// listAll pages through every record of a collection
func (c *Client) listAll(ctx context.Context, collection, sort string) ([]json.RawMessage, error) {
	auth, err := c.authHeader(ctx)
	if err != nil {
		return nil, err
	}

	var all []json.RawMessage
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("perPage", strconv.Itoa(c.perPage))
		if sort != "" {
			q.Set("sort", sort)
		}
		reqURL := fmt.Sprintf("%s/api/collections/%s/records?%s", c.baseURL, collection, q.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
			return nil, fmt.Errorf("pocketbase list %s failed: %s: %s", collection, resp.Status, strings.TrimSpace(string(rb)))
		}

		var result listPage
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s page %d: %w", collection, page, err)
		}

		all = append(all, result.Items...)

		if len(result.Items) < c.perPage || (result.TotalPages > 0 && page >= result.TotalPages) {
			break
		}
	}

	return all, nil
}

type vehicleRecord struct {
	ID          string `json:"id"`
	PlateNumber string `json:"plate_number"`
	Name        string `json:"name"`
	TruckType   string `json:"truck_type"`
	Created     string `json:"created"`
}

// ListVehicles fetches every vehicle record
func (c *Client) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	raw, err := c.listAll(ctx, c.vehicleCollection, "created")
	if err != nil {
		return nil, err
	}

	vehicles := make([]models.Vehicle, 0, len(raw))
	for _, item := range raw {
		var r vehicleRecord
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
		v := models.Vehicle{
			ID:          r.ID,
			PlateNumber: r.PlateNumber,
			Name:        r.Name,
			VehicleType: r.TruckType,
		}
		if r.Created != "" {
			v.CreatedAt, _ = parser.ParseTimestamp(r.Created)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

type fuelRecord struct {
	ID              string  `json:"id"`
	TruckID         string  `json:"truck_id"`
	Created         string  `json:"created"`
	OdometerReading reading `json:"odometer_reading"`
	FuelAmount      reading `json:"fuel_amount"`
}

// ListRefuelEvents fetches every fuel record, oldest first. Records with an
// unparseable creation time are kept with a zero time.
func (c *Client) ListRefuelEvents(ctx context.Context) ([]models.RefuelEvent, error) {
	raw, err := c.listAll(ctx, c.fuelCollection, "created")
	if err != nil {
		return nil, err
	}

	events := make([]models.RefuelEvent, 0, len(raw))
	for _, item := range raw {
		var r fuelRecord
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, fmt.Errorf("decode fuel record: %w", err)
		}
		e := models.RefuelEvent{
			ID:         r.ID,
			VehicleID:  r.TruckID,
			OdometerKM: r.OdometerReading.value,
			FuelLiters: r.FuelAmount.value,
		}
		if r.Created != "" {
			e.Created, _ = parser.ParseTimestamp(r.Created)
		}
		events = append(events, e)
	}
	return events, nil
}

// reading decodes a PocketBase number field that may arrive as a number,
// a numeric string, an empty string or null
type reading struct {
	value *float64
}

func (r *reading) UnmarshalJSON(b []byte) error {
	r.value = nil
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch val := v.(type) {
	case float64:
		r.value = parser.ParseReading(strconv.FormatFloat(val, 'f', -1, 64))
	case string:
		r.value = parser.ParseReading(val)
	}
	return nil
}
