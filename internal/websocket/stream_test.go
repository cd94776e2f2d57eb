package websocket

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sysview/sysview/internal/controller"
)

type fakeHub struct {
	mu      sync.Mutex
	ch      chan controller.Event
	queries []string
}

func (h *fakeHub) Subscribe() (<-chan controller.Event, func()) {
	return h.ch, func() {}
}

func (h *fakeHub) Search(q string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries = append(h.queries, q)
}

func (h *fakeHub) searched() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.queries...)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamDeliversEvents(t *testing.T) {
	hub := &fakeHub{ch: make(chan controller.Event, 4)}
	s := NewServer(hub)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	conn := dial(t, srv)
	hub.ch <- controller.Event{Type: controller.EventStartup, Count: 3}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev controller.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != controller.EventStartup || ev.Count != 3 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestStreamForwardsSearch(t *testing.T) {
	hub := &fakeHub{ch: make(chan controller.Event)}
	s := NewServer(hub)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(ClientMessage{Type: "search", Query: "git"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q := hub.searched(); len(q) == 1 && q[0] == "git" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("search not forwarded: %v", hub.searched())
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := &fakeHub{ch: make(chan controller.Event)}
	s := NewServer(hub)
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dial(t, srv)
	s.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}
