package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fleet-fuel-monitor/internal/efficiency"
)

// Config holds the runtime configuration for the service.
// Values are sourced from environment variables, optionally seeded from a
// .env file, with defaults where appropriate.
type Config struct {
	ListenAddr string
	DBPath     string

	// ReportSource selects where the efficiency report reads from:
	// "local" (SQLite) or "pocketbase".
	ReportSource string

	// PocketBase
	PBBaseURL           string
	PBAuthCollection    string
	PBIdentity          string
	PBPassword          string
	PBVehicleCollection string
	PBFuelCollection    string
	PBTimeout           time.Duration

	// Cache
	RedisURL    string
	EnableRedis bool
	CacheTTL    time.Duration

	// PollInterval is how often the server recomputes the report; 0 disables polling.
	PollInterval time.Duration

	Efficiency efficiency.Config
}

// Load reads configuration from the environment. If envFile is non-empty it
// is loaded first; variables already set in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	defaults := efficiency.DefaultConfig()
	cfg := &Config{
		ListenAddr:   getenv("LISTEN_ADDR", ":8080"),
		DBPath:       getenv("DB_PATH", "fleet_fuel.db"),
		ReportSource: strings.ToLower(getenv("REPORT_SOURCE", "local")),

		PBBaseURL:           strings.TrimRight(getenv("PB_URL", ""), "/"),
		PBAuthCollection:    getenv("PB_AUTH_COLLECTION", "users"),
		PBIdentity:          getenv("PB_IDENTITY", ""),
		PBPassword:          getenv("PB_PASSWORD", ""),
		PBVehicleCollection: getenv("PB_VEHICLE_COLLECTION", "truck"),
		PBFuelCollection:    getenv("PB_FUEL_COLLECTION", "fuel"),
		PBTimeout:           time.Duration(getenvInt("PB_TIMEOUT_MS", 15000)) * time.Millisecond,

		RedisURL:    getenv("REDIS_URL", ""),
		EnableRedis: getenvBool("ENABLE_REDIS", false),
		CacheTTL:    time.Duration(getenvInt("CACHE_TTL_SECONDS", 30)) * time.Second,

		PollInterval: time.Duration(getenvInt("POLL_INTERVAL_SECONDS", 60)) * time.Second,

		Efficiency: efficiency.Config{
			MinSegmentKM:   getenvFloat("EFFICIENCY_MIN_SEGMENT_KM", defaults.MinSegmentKM),
			MaxSegmentKM:   getenvFloat("EFFICIENCY_MAX_SEGMENT_KM", defaults.MaxSegmentKM),
			ExcellentAbove: getenvFloat("EFFICIENCY_EXCELLENT_ABOVE", defaults.ExcellentAbove),
			GoodAbove:      getenvFloat("EFFICIENCY_GOOD_ABOVE", defaults.GoodAbove),
			AverageAbove:   getenvFloat("EFFICIENCY_AVERAGE_ABOVE", defaults.AverageAbove),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.ReportSource {
	case "local":
	case "pocketbase":
		if c.PBBaseURL == "" {
			return fmt.Errorf("PB_URL is required when REPORT_SOURCE=pocketbase")
		}
	default:
		return fmt.Errorf("REPORT_SOURCE must be local or pocketbase, got %q", c.ReportSource)
	}
	if c.EnableRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when ENABLE_REDIS is set")
	}
	if err := c.Efficiency.Validate(); err != nil {
		return fmt.Errorf("invalid efficiency settings: %w", err)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i >= 0 {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
