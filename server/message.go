package server

import (
	"math"
	"strconv"
	"strings"

	"nearby.live/presence"
)

// Inbound event types
const (
	EventIdentify = "identify"
	EventLocation = "location"
	EventPing     = "ping"
)

// Error codes reported to clients
const (
	ErrMissingUserID      = "missing_user_id"
	ErrIdentifyFirst      = "identify_first"
	ErrInvalidCoordinates = "invalid_coordinates"
)

// Event is an inbound client message. The type field selects the variant;
// the remaining fields are untyped because clients send both numbers and
// numeric strings for coordinates and radius.
type Event struct {
	Type      string      `json:"type"`
	UserID    string      `json:"user_id"`
	RadiusKM  interface{} `json:"radius_km"`
	Latitude  interface{} `json:"latitude"`
	Longitude interface{} `json:"longitude"`
}

// Ack confirms a successful identify
type Ack struct {
	Type     string  `json:"type"`
	OK       bool    `json:"ok"`
	RadiusKM float64 `json:"radius_km"`
}

// ErrorReply reports a protocol error without ending the session
type ErrorReply struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Proximity is the answer to a location report
type Proximity struct {
	Type        string              `json:"type"`
	FoundNearby bool                `json:"found_nearby"`
	CountNearby int                 `json:"count_nearby"`
	Sample      []presence.Neighbor `json:"sample"`
}

// Pong answers a ping
type Pong struct {
	Type string `json:"type"`
}

func newAck(radiusKM float64) *Ack {
	return &Ack{Type: "ack", OK: true, RadiusKM: radiusKM}
}

func newError(code string) *ErrorReply {
	return &ErrorReply{Type: "error", Error: code}
}

func newPong() *Pong {
	return &Pong{Type: "pong"}
}

// toFloat parses a JSON value as a real number. Accepts finite numbers
// and numeric strings, rejects everything else. ParseFloat admits
// "nan" and "inf", which would poison radius math and produce replies
// json.Marshal cannot encode, so non-finite values fail the parse.
func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, isFinite(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && isFinite(f)
	}
	return 0, false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
