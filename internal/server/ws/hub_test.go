package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger, Config{Status: func() any { return map[string]any{"live": true} }})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

func TestHubSendsStatusThenBroadcasts(t *testing.T) {
	hub, conn := startHub(t)

	env := readFrame(t, conn)
	if env.Type != "status" || string(env.Payload) != `{"live":true}` {
		t.Fatalf("initial frame = %s %s", env.Type, env.Payload)
	}

	hub.Broadcast("events", []byte(`{"kind":"append","len":1}`))
	env = readFrame(t, conn)
	if env.Type != "events" || string(env.Payload) != `{"kind":"append","len":1}` {
		t.Errorf("frame = %s %s", env.Type, env.Payload)
	}
}

func TestHubHonoursUnsubscribe(t *testing.T) {
	hub, conn := startHub(t)
	readFrame(t, conn)

	if err := conn.WriteJSON(map[string]any{"unsubscribe": []string{"events"}}); err != nil {
		t.Fatal(err)
	}
	// The read pump applies the change asynchronously. Each round sends an
	// events frame followed by an unlock frame; the first round whose first
	// frame is the unlock one proves events are no longer delivered.
	for i := 0; i < 50; i++ {
		time.Sleep(20 * time.Millisecond)
		hub.Broadcast("events", []byte(`1`))
		hub.BroadcastJSON("unlock", map[string]string{"market_id": "m-1"})
		if readFrame(t, conn).Type == "unlock" {
			return
		}
		if env := readFrame(t, conn); env.Type != "unlock" {
			t.Fatalf("frame = %s, want unlock", env.Type)
		}
	}
	t.Fatal("unsubscribe never took effect")
}

func TestIsSubscribedWildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"unlock:*": true}}
	if !c.isSubscribed("unlock:m-1") {
		t.Error("wildcard did not match")
	}
	if c.isSubscribed("events") {
		t.Error("unexpected match")
	}
}
