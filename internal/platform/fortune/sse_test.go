package fortune

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

func TestEventStreamParsesFields(t *testing.T) {
	raw := ": keep-alive\n" +
		"event: event\n" +
		"id: 7\n" +
		"data: {\"uuid\":\n" +
		"data: \"a\"}\n" +
		"\n" +
		"data: plain\r\n" +
		"\r\n" +
		"event: ignored-without-data\n" +
		"\n" +
		"event: event\n" +
		"data: tail-without-blank-line\n"

	s := NewEventStream(io.NopCloser(strings.NewReader(raw)))

	msg, err := s.Next()
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if msg.Event != "event" || msg.ID != "7" || string(msg.Data) != "{\"uuid\":\n\"a\"}" {
		t.Errorf("first = %+v (%q)", msg, msg.Data)
	}

	msg, err = s.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if msg.Event != "message" || string(msg.Data) != "plain" || msg.ID != "7" {
		t.Errorf("second = %+v (%q)", msg, msg.Data)
	}

	if _, err := s.Next(); !errors.Is(err, domain.ErrStreamClosed) {
		t.Fatalf("third Next err = %v, want ErrStreamClosed", err)
	}
}

func TestOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/event/stream" || r.URL.Query().Get("network") != "testnet" {
			t.Errorf("url = %s", r.URL)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: event\ndata: [1]\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "testnet", 5*time.Second)
	s, err := c.OpenStream(t.Context())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()

	msg, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(msg.Data) != "[1]" {
		t.Errorf("data = %q", msg.Data)
	}
	if _, err := s.Next(); !errors.Is(err, domain.ErrStreamClosed) {
		t.Errorf("err = %v, want ErrStreamClosed", err)
	}
}

func TestOpenStreamRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"maintenance"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "testnet", 5*time.Second)
	if _, err := c.OpenStream(t.Context()); err == nil {
		t.Fatal("expected error")
	}
}
