// Package feed keeps the event store in sync with the backend's live stream
// and fans store changes out to local subscribers.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
	"github.com/alanyoungcy/fortune/internal/eventstore"
	"github.com/alanyoungcy/fortune/internal/platform/fortune"
)

// DefaultReconnectDelay is the fixed pause between a dropped stream and the
// next connection attempt.
const DefaultReconnectDelay = 5 * time.Second

// eventMessage is the SSE event name carrying market payloads.
const eventMessage = "event"

// State is the connectivity state of the synchronizer.
type State int

const (
	StateConnecting State = iota + 1
	StateLive
	StateReconnectPending
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnectPending:
		return "reconnect-pending"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StatusListener is told about every state transition.
type StatusListener func(State)

// StreamSource opens the backend event stream.
type StreamSource interface {
	OpenStream(ctx context.Context) (*fortune.EventStream, error)
}

var _ StreamSource = (*fortune.Client)(nil)

// Synchronizer owns the single stream connection and applies its messages
// to the event store in receipt order. Disconnects are retried forever after
// a fixed delay.
type Synchronizer struct {
	source         StreamSource
	store          *eventstore.Store
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	state     State
	current   *fortune.EventStream
	listeners []StatusListener

	closeOnce sync.Once
	done      chan struct{}
}

// NewSynchronizer creates a synchronizer feeding store from source. A
// non-positive delay selects DefaultReconnectDelay.
func NewSynchronizer(source StreamSource, store *eventstore.Store, reconnectDelay time.Duration, logger *slog.Logger) *Synchronizer {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Synchronizer{
		source:         source,
		store:          store,
		reconnectDelay: reconnectDelay,
		logger:         logger.With(slog.String("component", "stream_sync")),
		state:          StateConnecting,
		done:           make(chan struct{}),
	}
}

// OnStatus registers fn for state transitions. Register before Run.
func (s *Synchronizer) OnStatus(fn StatusListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// State returns the current connectivity state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Live reports whether the stream is currently open.
func (s *Synchronizer) Live() bool {
	return s.State() == StateLive
}

// Run connects and consumes the stream until ctx is cancelled or Close is
// called. It never gives up on its own. Run returns nil after Close and
// ctx.Err() after cancellation.
func (s *Synchronizer) Run(ctx context.Context) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer s.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			return parent.Err()
		}

		s.setState(StateConnecting)
		stream, err := s.source.OpenStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return parent.Err()
			}
			s.logger.WarnContext(ctx, "event stream connect failed", slog.String("error", err.Error()))
		} else {
			s.consume(ctx, stream)
		}

		if ctx.Err() != nil {
			return parent.Err()
		}

		s.setState(StateReconnectPending)
		s.logger.InfoContext(ctx, "event stream closed, reconnecting",
			slog.Duration("delay", s.reconnectDelay),
		)
		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return parent.Err()
		case <-timer.C:
		}
	}
}

// Close tears the synchronizer down: the open connection is closed and a
// pending reconnect is cancelled.
func (s *Synchronizer) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		if cur != nil {
			cur.Close()
		}
	})
	return nil
}

func (s *Synchronizer) consume(ctx context.Context, stream *fortune.EventStream) {
	s.mu.Lock()
	s.current = stream
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		stream.Close()
	}()

	// Close may have run between OpenStream and registering the stream.
	if ctx.Err() != nil {
		return
	}

	s.setState(StateLive)
	s.logger.InfoContext(ctx, "event stream live")

	for {
		msg, err := stream.Next()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.DebugContext(ctx, "event stream ended", slog.String("error", err.Error()))
			}
			return
		}
		if msg.Event != eventMessage {
			continue
		}
		if err := s.apply(msg.Data); err != nil {
			s.logger.WarnContext(ctx, "dropping malformed event payload",
				slog.String("error", err.Error()),
				slog.Int("payload_len", len(msg.Data)),
			)
		}
	}
}

// apply decodes one payload: an array replaces the store, an object upserts.
func (s *Synchronizer) apply(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("feed: empty payload")
	}

	switch trimmed[0] {
	case '[':
		var batch []fortune.APIEvent
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return fmt.Errorf("feed: decode event list: %w", err)
		}
		events := make([]domain.MarketEvent, 0, len(batch))
		for _, ev := range batch {
			if ev.UUID == "" {
				return fmt.Errorf("feed: event list entry without uuid")
			}
			events = append(events, ev.ToDomain())
		}
		s.store.Replace(events)
	case '{':
		var ev fortune.APIEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return fmt.Errorf("feed: decode event: %w", err)
		}
		if ev.UUID == "" {
			return fmt.Errorf("feed: event without uuid")
		}
		s.store.Upsert(ev.ToDomain())
	default:
		return fmt.Errorf("feed: payload is neither object nor array")
	}
	return nil
}

func (s *Synchronizer) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	listeners := append([]StatusListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}
