// Package server implements the proximity protocol: per-connection
// sessions driven by identify/location/ping events over a websocket,
// answering each location report with who else is nearby.
package server

import (
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"nearby.live/presence"
)

const (
	// MinRadiusKM is the floor for a client supplied radius override
	MinRadiusKM = 0.01

	// SampleLimit caps how many neighbors are named in a proximity reply
	SampleLimit = 5
)

// Session is the per-connection protocol state. It starts unidentified;
// a valid identify event names the user and optionally overrides the
// proximity radius. Location reports before identify are rejected.
type Session struct {
	// A unique id for logging
	ID string
	// the shared presence registry
	registry *presence.Registry
	// the user id, empty until identified
	userID string
	// per-session proximity radius in km
	radiusKM float64
	// staleness window for neighbor scans
	ttl time.Duration
}

// NewSession creates a session against the shared registry
func NewSession(registry *presence.Registry, cfg *Config) *Session {
	return &Session{
		ID:       uuid.New().String(),
		registry: registry,
		radiusKM: cfg.DefaultRadiusKM,
		ttl:      cfg.TTL(),
	}
}

// UserID returns the identity claimed by this session, if any
func (s *Session) UserID() string {
	return s.userID
}

// RadiusKM returns the session's effective proximity radius
func (s *Session) RadiusKM() float64 {
	return s.radiusKM
}

// Handle processes one inbound event and returns the response to send,
// or nil for event types we don't recognise.
func (s *Session) Handle(ev *Event) interface{} {
	switch ev.Type {
	case EventIdentify:
		return s.identify(ev)
	case EventLocation:
		return s.location(ev)
	case EventPing:
		return newPong()
	}

	// unrecognised types are tolerated silently
	return nil
}

func (s *Session) identify(ev *Event) interface{} {
	userID := strings.TrimSpace(ev.UserID)
	if userID == "" {
		return newError(ErrMissingUserID)
	}

	s.userID = userID

	// radius override is optional; an unparseable value keeps the prior radius
	if ev.RadiusKM != nil {
		if r, ok := toFloat(ev.RadiusKM); ok {
			s.radiusKM = math.Max(MinRadiusKM, r)
		}
	}

	return newAck(s.radiusKM)
}

func (s *Session) location(ev *Event) interface{} {
	if s.userID == "" {
		return newError(ErrIdentifyFirst)
	}

	lat, ok := toFloat(ev.Latitude)
	if !ok {
		return newError(ErrInvalidCoordinates)
	}
	lon, ok := toFloat(ev.Longitude)
	if !ok {
		return newError(ErrInvalidCoordinates)
	}

	count, samples := s.registry.Report(s.userID, lat, lon, s.radiusKM, s.ttl, SampleLimit, time.Now())

	log.Printf("[session] %s updated (%.4f, %.4f) nearby=%d", s.userID, lat, lon, count)

	return &Proximity{
		Type:        "proximity",
		FoundNearby: count > 0,
		CountNearby: count,
		Sample:      samples,
	}
}
