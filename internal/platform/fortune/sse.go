package fortune

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// StreamMessage is one dispatched server-sent event.
type StreamMessage struct {
	ID    string
	Event string // "message" when the server sent no event field
	Data  []byte
}

// EventStream reads server-sent events from an open response body.
type EventStream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	closeOnce sync.Once
	lastID    string
}

// OpenStream connects to the event stream. It returns once the server has
// answered with a 2xx text/event-stream response; the connection then stays
// open until the server closes it, ctx is cancelled, or Close is called.
func (c *Client) OpenStream(ctx context.Context) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StreamURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("fortune/sse: create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fortune/sse: connect: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("fortune/sse: connect: %w", checkHTTPStatus(resp.StatusCode, body, "Failed to connect to stream"))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("fortune/sse: unexpected content type %q", ct)
	}

	return NewEventStream(resp.Body), nil
}

// NewEventStream wraps r as an event stream reader.
func NewEventStream(r io.ReadCloser) *EventStream {
	return &EventStream{body: r, reader: bufio.NewReader(r)}
}

// Next blocks until the next event is dispatched. It returns
// domain.ErrStreamClosed (wrapping the transport error, if any) once the
// stream ends; a partially received event at the end is discarded.
func (s *EventStream) Next() (StreamMessage, error) {
	var (
		data    bytes.Buffer
		hasData bool
		event   string
	)

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return StreamMessage{}, domain.ErrStreamClosed
			}
			return StreamMessage{}, fmt.Errorf("%w: %v", domain.ErrStreamClosed, err)
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !hasData {
				event = ""
				continue
			}
			if event == "" {
				event = "message"
			}
			return StreamMessage{ID: s.lastID, Event: event, Data: data.Bytes()}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastID = value
			}
		}
	}
}

// Close releases the connection. It is safe to call more than once.
func (s *EventStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
