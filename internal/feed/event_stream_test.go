package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/fortune/internal/eventstore"
	"github.com/alanyoungcy/fortune/internal/platform/fortune"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSynchronizerAppliesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: event\ndata: [{\"uuid\":\"a\",\"title\":\"A\"},{\"uuid\":\"b\",\"title\":\"B\"}]\n\n")
		fmt.Fprint(w, "event: event\ndata: {not json\n\n")
		fmt.Fprint(w, "event: event\ndata: {\"uuid\":\"a\",\"title\":\"A2\",\"status\":\"ACTIVE\"}\n\n")
		fmt.Fprint(w, "event: ping\ndata: {\"uuid\":\"ignored\"}\n\n")
		fmt.Fprint(w, "event: event\ndata: {\"uuid\":\"c\",\"title\":\"C\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	store := eventstore.New()
	client := fortune.NewClient(srv.URL, "testnet", 5*time.Second)
	s := NewSynchronizer(client, store, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitFor(t, "three events", func() bool { return store.Len() == 3 })

	snap := store.Snapshot()
	if snap[0].ID != "a" || snap[0].Title != "A2" || snap[1].ID != "b" || snap[2].ID != "c" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap[0].Status != "active" {
		t.Errorf("status = %q, want active", snap[0].Status)
	}
	if !s.Live() {
		t.Error("expected live after malformed payload")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run after Close = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if st := s.State(); st != StateStopped {
		t.Errorf("state = %v, want stopped", st)
	}
}

func TestSynchronizerReconnects(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: event\ndata: [{\"uuid\":\"gen-%d\"}]\n\n", n)
	}))
	defer srv.Close()

	store := eventstore.New()
	client := fortune.NewClient(srv.URL, "testnet", 5*time.Second)
	s := NewSynchronizer(client, store, 20*time.Millisecond, discardLogger())

	var mu sync.Mutex
	var states []State
	s.OnStatus(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitFor(t, "three connections", func() bool { return conns.Load() >= 3 })
	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Run = %v, want context.Canceled", err)
	}

	snap := store.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("store len = %d, want 1 (array replaces)", len(snap))
	}

	mu.Lock()
	defer mu.Unlock()
	var sawLive, sawPending bool
	for _, st := range states {
		switch st {
		case StateLive:
			sawLive = true
		case StateReconnectPending:
			sawPending = true
		}
	}
	if !sawLive || !sawPending {
		t.Errorf("states = %v, want live and reconnect-pending", states)
	}
	if states[len(states)-1] != StateStopped {
		t.Errorf("last state = %v, want stopped", states[len(states)-1])
	}
}

func TestSynchronizerCloseCancelsPendingReconnect(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	client := fortune.NewClient(srv.URL, "testnet", 5*time.Second)
	s := NewSynchronizer(client, eventstore.New(), time.Hour, discardLogger())

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	waitFor(t, "reconnect pending", func() bool { return s.State() == StateReconnectPending })
	s.Close()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pending reconnect was not cancelled")
	}
	if n := conns.Load(); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []string
}

func (p *recordingPublisher) Broadcast(channel string, data []byte) {
	p.mu.Lock()
	p.msgs = append(p.msgs, channel+":"+string(data))
	p.mu.Unlock()
}

func TestBroadcasterForwardsChanges(t *testing.T) {
	store := eventstore.New()
	pub := &recordingPublisher{}
	stop := NewBroadcaster(store, pub, discardLogger()).Start()

	s := NewSynchronizer(nil, store, time.Second, discardLogger())
	if err := s.apply([]byte(`[{"uuid":"a","title":"A"}]`)); err != nil {
		t.Fatal(err)
	}
	if err := s.apply([]byte(` {"uuid":"b","title":"B"}`)); err != nil {
		t.Fatal(err)
	}
	stop()
	if err := s.apply([]byte(`{"uuid":"c"}`)); err != nil {
		t.Fatal(err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.msgs) != 2 {
		t.Fatalf("messages = %d, want 2: %v", len(pub.msgs), pub.msgs)
	}
	want0 := `events:{"kind":"replace","events":[{"id":"a","title":"A","category":"","liquidity":0,"volume":0,"status":"other","ends_at":0,"first_seen_at":0}],"len":1}`
	if pub.msgs[0] != want0 {
		t.Errorf("msg[0] = %s", pub.msgs[0])
	}
	want1 := `events:{"kind":"append","event":{"id":"b","title":"B","category":"","liquidity":0,"volume":0,"status":"other","ends_at":0,"first_seen_at":0},"len":2}`
	if pub.msgs[1] != want1 {
		t.Errorf("msg[1] = %s", pub.msgs[1])
	}
}

func TestApplyRejectsMalformed(t *testing.T) {
	s := NewSynchronizer(nil, eventstore.New(), time.Second, discardLogger())
	for _, payload := range []string{"", "42", `"str"`, `[{"uuid":1}]`, `{"title":"no id"}`} {
		if err := s.apply([]byte(payload)); err == nil {
			t.Errorf("apply(%q) = nil, want error", payload)
		}
	}
	if s.store.Len() != 0 {
		t.Error("malformed payload changed the store")
	}
}
