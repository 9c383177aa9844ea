package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"nearby.live/presence"
)

func dialTestServer(t *testing.T, registry *presence.Registry, cfg *Config) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(WSHandler(registry, cfg))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatal(err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

// TestWebSocketProtocol runs identify, location, ping over a real socket
// and checks one response per event, in order
func TestWebSocketProtocol(t *testing.T) {
	conn := dialTestServer(t, presence.NewRegistry(), testConfig())

	send(t, conn, map[string]interface{}{"type": "identify", "user_id": "a"})
	ack := recv(t, conn)
	if ack["type"] != "ack" || ack["ok"] != true {
		t.Fatalf("got %v, want ack", ack)
	}
	if ack["radius_km"] != 0.2 {
		t.Errorf("radius = %v, want default 0.2", ack["radius_km"])
	}

	send(t, conn, map[string]interface{}{"type": "location", "latitude": 38.0, "longitude": -122.0})
	prox := recv(t, conn)
	if prox["type"] != "proximity" {
		t.Fatalf("got %v, want proximity", prox)
	}
	if prox["found_nearby"] != false {
		t.Error("found_nearby = true with nobody else connected")
	}
	if sample, ok := prox["sample"].([]interface{}); !ok || len(sample) != 0 {
		t.Errorf("sample = %v, want empty array", prox["sample"])
	}

	// an unknown type gets no reply, so the next response is the pong
	send(t, conn, map[string]interface{}{"type": "telemetry"})
	send(t, conn, map[string]interface{}{"type": "ping"})
	pong := recv(t, conn)
	if pong["type"] != "pong" {
		t.Fatalf("got %v, want pong", pong)
	}
}

// TestWebSocketTwoClients checks two connected users see each other
func TestWebSocketTwoClients(t *testing.T) {
	registry := presence.NewRegistry()
	cfg := testConfig()

	a := dialTestServer(t, registry, cfg)
	b := dialTestServer(t, registry, cfg)

	send(t, a, map[string]interface{}{"type": "identify", "user_id": "a"})
	recv(t, a)
	send(t, b, map[string]interface{}{"type": "identify", "user_id": "b"})
	recv(t, b)

	send(t, b, map[string]interface{}{"type": "location", "latitude": 37.7750, "longitude": -122.4195})
	recv(t, b)

	send(t, a, map[string]interface{}{"type": "location", "latitude": 37.7749, "longitude": -122.4194})
	prox := recv(t, a)

	if prox["found_nearby"] != true {
		t.Fatalf("got %v, want found_nearby", prox)
	}
	if prox["count_nearby"] != float64(1) {
		t.Errorf("count = %v, want 1", prox["count_nearby"])
	}

	sample := prox["sample"].([]interface{})
	if len(sample) != 1 {
		t.Fatalf("sample = %v, want one entry", sample)
	}
	if sample[0].(map[string]interface{})["user_id"] != "b" {
		t.Errorf("sample = %v, want user b", sample[0])
	}
}

// TestWebSocketBadFrameClosesConnection checks undecodable input faults
// the connection rather than being retried
func TestWebSocketBadFrameClosesConnection(t *testing.T) {
	conn := dialTestServer(t, presence.NewRegistry(), testConfig())

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the server to close the connection")
	}
}
