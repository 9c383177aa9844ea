package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nearby.live/presence"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client.
	pongWait = 60 * time.Second

	// Send pings to client with this period. Must be less than pongWait.
	pingPeriod = 15 * time.Second

	// Maximum message size allowed from client.
	maxMessageSize = 512
)

func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return cfg.AllowOrigin(origin)
		},
	}
}

// ServeWebSocket upgrades the connection and runs the proximity protocol
// over it until the client goes away. Disconnects leave the registry
// alone; a user's record ages out via the TTL so a quick reconnect does
// not lose their presence.
func ServeWebSocket(w http.ResponseWriter, r *http.Request, registry *presence.Registry, cfg *Config) {
	upgrader := newUpgrader(cfg)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	s := stream{
		ctx:       r.Context(),
		conn:      conn,
		session:   NewSession(registry, cfg),
		responses: make(chan interface{}, 16),
	}

	s.run()
}

type stream struct {
	// request context
	ctx context.Context
	// the websocket connection.
	conn *websocket.Conn
	// per-connection protocol state
	session *Session
	// responses queued for the client, in request order
	responses chan interface{}
}

func (s *stream) run() {
	defer func() {
		s.conn.Close()
	}()

	// to cancel everything
	stopCtx, cancel := context.WithCancel(context.Background())

	// wait for things to exist
	wg := sync.WaitGroup{}
	wg.Add(2)

	// establish the loops
	go s.writeLoop(cancel, &wg, stopCtx)
	go s.readLoop(cancel, &wg, stopCtx)
	wg.Wait()
}

func (s *stream) readLoop(cancel context.CancelFunc, wg *sync.WaitGroup, stopCtx context.Context) {
	defer func() {
		cancel()
		wg.Done()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		select {
		case <-stopCtx.Done():
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[socket] %s read: %v", s.session.ID, err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			// not a valid envelope, treat the connection as faulted
			log.Printf("[socket] %s bad frame: %v", s.session.ID, err)
			return
		}

		rsp := s.session.Handle(&ev)
		if rsp == nil {
			continue
		}

		select {
		case s.responses <- rsp:
		case <-stopCtx.Done():
			return
		}
	}
}

func (s *stream) writeLoop(cancel context.CancelFunc, wg *sync.WaitGroup, stopCtx context.Context) {
	defer func() {
		s.conn.Close()
		cancel()
		wg.Done()
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stopCtx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case rsp := <-s.responses:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			b, err := json.Marshal(rsp)
			if err != nil {
				log.Printf("[socket] %s marshal: %v", s.session.ID, err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
