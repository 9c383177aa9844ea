package server

import (
	"testing"
	"time"
)

// TestFromEnv checks env vars land in the config
func TestFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DEFAULT_RADIUS_KM", "0.5")
	t.Setenv("PRESENCE_TTL", "60")
	t.Setenv("CORS_ORIGINS", "https://a.com,https://b.com")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Port)
	}
	if cfg.DefaultRadiusKM != 0.5 {
		t.Errorf("radius = %v, want 0.5", cfg.DefaultRadiusKM)
	}
	if cfg.TTL() != time.Minute {
		t.Errorf("ttl = %v, want 1m", cfg.TTL())
	}
	if len(cfg.Origins()) != 2 {
		t.Errorf("origins = %v, want 2 entries", cfg.Origins())
	}
}

// TestOrigins checks list parsing and the wildcard
func TestOrigins(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		origin  string
		allowed bool
	}{
		{"wildcard allows anything", "*", "https://anywhere.com", true},
		{"exact match", "https://a.com", "https://a.com", true},
		{"no match", "https://a.com", "https://b.com", false},
		{"spaces trimmed", " https://a.com , https://b.com ", "https://b.com", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{CORSOrigins: tc.raw}
			if got := cfg.AllowOrigin(tc.origin); got != tc.allowed {
				t.Errorf("AllowOrigin(%q) = %v, want %v", tc.origin, got, tc.allowed)
			}
		})
	}
}
