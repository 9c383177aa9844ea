package server

import (
	"encoding/json"
	"net/http"
	"time"

	"nearby.live/presence"
)

// HealthResponse is the liveness probe body
type HealthResponse struct {
	OK     bool `json:"ok"`
	Active int  `json:"active"`
}

// HealthHandler reports liveness and the count of non-stale users.
// Checking health also sweeps stale records out of the registry.
func HealthHandler(registry *presence.Registry, cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		registry.Prune(cfg.TTL(), now)

		rsp := HealthResponse{
			OK:     true,
			Active: registry.Active(cfg.TTL(), now),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rsp)
	}
}

// WSHandler serves the websocket endpoint
func WSHandler(registry *presence.Registry, cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ServeWebSocket(w, r, registry, cfg)
	}
}

// SetHeaders writes the CORS headers for an allowed origin
func SetHeaders(w http.ResponseWriter, r *http.Request, cfg *Config) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if !cfg.AllowOrigin(origin) {
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
}

// WithCors wraps a handler with CORS headers per the configured origins
func WithCors(h http.Handler, cfg *Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetHeaders(w, r, cfg)

		// if options return immediately
		if r.Method == "OPTIONS" {
			return
		}

		h.ServeHTTP(w, r)
	})
}
