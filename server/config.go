package server

import (
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds the process configuration. Defaults are loaded via envdecode.
type Config struct {
	// Port to listen on. ENV: PORT
	Port int `env:"PORT,default=8080"`
	// DefaultRadiusKM is the per-session radius before any override. ENV: DEFAULT_RADIUS_KM
	DefaultRadiusKM float64 `env:"DEFAULT_RADIUS_KM,default=0.2"`
	// PresenceTTL is the staleness window in seconds. ENV: PRESENCE_TTL
	PresenceTTL int `env:"PRESENCE_TTL,default=120"`
	// CORSOrigins is a comma separated origin list, or "*". ENV: CORS_ORIGINS
	CORSOrigins string `env:"CORS_ORIGINS,default=*"`
}

// FromEnv builds a Config using envdecode to populate defaults
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TTL returns the presence staleness window as a duration
func (c *Config) TTL() time.Duration {
	return time.Duration(c.PresenceTTL) * time.Second
}

// Origins returns the parsed allowed origin list
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// AllowOrigin reports whether an origin is permitted
func (c *Config) AllowOrigin(origin string) bool {
	for _, o := range c.Origins() {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
