// Package websocket streams controller events to dashboard clients and
// accepts search input from them.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sysview/sysview/internal/controller"
	"github.com/sysview/sysview/internal/logging"
)

var log = logging.L("websocket")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Hub is the event source behind the stream.
type Hub interface {
	Subscribe() (<-chan controller.Event, func())
	Search(query string)
}

// ClientMessage is a message sent by a dashboard client.
type ClientMessage struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
}

// Server upgrades HTTP requests and pumps events to each connection.
type Server struct {
	hub      Hub
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients int
	done    chan struct{}
	once    sync.Once
}

// NewServer creates a stream server over hub.
func NewServer(hub Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		done: make(chan struct{}),
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// Close disconnects every client.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the server is closed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", logging.KeyError, err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	s.mu.Lock()
	s.clients++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.clients--
		s.mu.Unlock()
	}()

	log.Debug("stream client connected", "remote", r.RemoteAddr)

	readDone := make(chan struct{})
	go s.readPump(conn, readDone)
	s.writePump(conn, events, readDone)

	log.Debug("stream client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", logging.KeyError, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn("failed to parse client message", logging.KeyError, err)
			continue
		}

		switch msg.Type {
		case "search":
			s.hub.Search(msg.Query)
		default:
			log.Debug("ignoring client message", "type", msg.Type)
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, events <-chan controller.Event, readDone chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return

		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			message, err := json.Marshal(ev)
			if err != nil {
				log.Warn("failed to encode event", "type", ev.Type, logging.KeyError, err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write error", logging.KeyError, err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
