package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleet-fuel-monitor/internal/efficiency"
)

var configKeys = []string{
	"LISTEN_ADDR", "DB_PATH", "REPORT_SOURCE", "PB_URL", "PB_IDENTITY",
	"ENABLE_REDIS", "REDIS_URL", "CACHE_TTL_SECONDS", "POLL_INTERVAL_SECONDS",
	"EFFICIENCY_MAX_SEGMENT_KM", "EFFICIENCY_EXCELLENT_ABOVE", "EFFICIENCY_GOOD_ABOVE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.ReportSource != "local" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.CacheTTL != 30*time.Second || cfg.PollInterval != time.Minute {
		t.Errorf("unexpected durations: ttl=%v poll=%v", cfg.CacheTTL, cfg.PollInterval)
	}
	if cfg.Efficiency != efficiency.DefaultConfig() {
		t.Errorf("expected default efficiency settings, got %+v", cfg.Efficiency)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	content := "REPORT_SOURCE=pocketbase\nPB_URL=http://pb.local:8090/\nEFFICIENCY_MAX_SEGMENT_KM=3000\nPOLL_INTERVAL_SECONDS=0\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Cleanup(func() {
		for _, k := range configKeys {
			os.Unsetenv(k)
		}
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ReportSource != "pocketbase" || cfg.PBBaseURL != "http://pb.local:8090" {
		t.Errorf("unexpected PocketBase settings: %+v", cfg)
	}
	if cfg.Efficiency.MaxSegmentKM != 3000 {
		t.Errorf("expected max segment 3000, got %v", cfg.Efficiency.MaxSegmentKM)
	}
	if cfg.PollInterval != 0 {
		t.Errorf("expected polling disabled, got %v", cfg.PollInterval)
	}
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown source":         {"REPORT_SOURCE": "firebase"},
		"pocketbase without url": {"REPORT_SOURCE": "pocketbase"},
		"redis without url":      {"ENABLE_REDIS": "true"},
		"inverted thresholds":    {"EFFICIENCY_GOOD_ABOVE": "20"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
