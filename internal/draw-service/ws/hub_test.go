package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// roundTrip garante que as mensagens anteriores já foram processadas pelo hub.
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong map[string]string
	if err := conn.ReadJSON(&pong); err != nil || pong["type"] != "pong" {
		t.Fatalf("pong: %v %v", pong, err)
	}
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	if err := a.WriteJSON(ClientMsg{Type: "subscribe", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteJSON(ClientMsg{Type: "subscribe", SessionID: "s2"}); err != nil {
		t.Fatal(err)
	}
	roundTrip(t, a)
	roundTrip(t, b)

	hub.Broadcast(events.DrawUpdate{SessionID: "s1", Type: events.UpdatePool, Payload: map[string]string{"pool": "120"}})

	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got events.DrawUpdate
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "s1" || got.Type != events.UpdatePool {
		t.Fatalf("update = %+v", got)
	}

	// b só assinou s2: o próximo frame que recebe é o pong
	roundTrip(t, b)
}

func TestUnsubscribeAndDisconnectCleanUp(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	a := dial(t, srv)
	_ = a.WriteJSON(ClientMsg{Type: "subscribe", SessionID: "s1"})
	roundTrip(t, a)
	if n := hub.Subscribers("s1"); n != 1 {
		t.Fatalf("subscribers = %d", n)
	}
	_ = a.WriteJSON(ClientMsg{Type: "unsubscribe", SessionID: "s1"})
	roundTrip(t, a)
	if n := hub.Subscribers("s1"); n != 0 {
		t.Fatalf("subscribers after unsubscribe = %d", n)
	}

	_ = a.WriteJSON(ClientMsg{Type: "subscribe", SessionID: "s1"})
	roundTrip(t, a)
	_ = a.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("s1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection not removed after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
