package feed

import (
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/fortune/internal/eventstore"
)

// Publisher pushes a payload to every subscriber of a channel.
type Publisher interface {
	Broadcast(channel string, data []byte)
}

// ChannelEvents is the channel store changes are published on.
const ChannelEvents = "events"

// storeUpdate is the JSON shape published for each store change.
type storeUpdate struct {
	Kind  string      `json:"kind"`
	Event *eventJSON  `json:"event,omitempty"`
	All   []eventJSON `json:"events,omitempty"`
	Len   int         `json:"len"`
}

type eventJSON struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Liquidity float64 `json:"liquidity"`
	Volume    float64 `json:"volume"`
	Status    string  `json:"status"`
	EndsAt    int64   `json:"ends_at"`
	FirstSeen int64   `json:"first_seen_at"`
}

// Broadcaster forwards event store changes to a Publisher. A replace sends
// the full snapshot; an upsert sends only the touched event.
type Broadcaster struct {
	store  *eventstore.Store
	pub    Publisher
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(store *eventstore.Store, pub Publisher, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		store:  store,
		pub:    pub,
		logger: logger.With(slog.String("component", "store_broadcaster")),
	}
}

// Start subscribes to the store. The returned func stops forwarding.
func (b *Broadcaster) Start() (stop func()) {
	return b.store.Subscribe(b.handle)
}

func (b *Broadcaster) handle(c eventstore.Change) {
	var msg storeUpdate
	msg.Len = c.Len

	switch c.Kind {
	case eventstore.ChangeReplaced:
		msg.Kind = "replace"
		snap := b.store.Snapshot()
		msg.All = make([]eventJSON, 0, len(snap))
		for _, ev := range snap {
			msg.All = append(msg.All, toEventJSON(ev))
		}
	case eventstore.ChangeUpdated:
		msg.Kind = "update"
		ev := toEventJSON(c.Event)
		msg.Event = &ev
	case eventstore.ChangeAppended:
		msg.Kind = "append"
		ev := toEventJSON(c.Event)
		msg.Event = &ev
	default:
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Debug("marshal store update failed", slog.String("error", err.Error()))
		return
	}
	b.pub.Broadcast(ChannelEvents, data)
}
