package payment

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry hands out one workflow per market so concurrent callers share
// the same state machine.
type Registry struct {
	cfg    Config
	deps   Deps
	opts   []Option
	logger *slog.Logger

	mu        sync.Mutex
	flows     map[string]*Workflow
	listeners []Listener
}

// NewRegistry creates an empty registry. Workflows it creates use cfg, deps
// and opts.
func NewRegistry(cfg Config, deps Deps, logger *slog.Logger, opts ...Option) *Registry {
	return &Registry{
		cfg:    cfg,
		deps:   deps,
		opts:   opts,
		logger: logger,
		flows:  make(map[string]*Workflow),
	}
}

// OnSnapshot registers fn on every current and future workflow.
func (r *Registry) OnSnapshot(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
	for _, w := range r.flows {
		w.Subscribe(fn)
	}
}

// Get returns the workflow for marketID, creating it on first use.
func (r *Registry) Get(marketID string) *Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.flows[marketID]; ok {
		return w
	}
	w := NewWorkflow(marketID, r.cfg, r.deps, r.logger, r.opts...)
	for _, fn := range r.listeners {
		w.Subscribe(fn)
	}
	r.flows[marketID] = w
	return w
}

// Lookup returns the workflow for marketID if one exists.
func (r *Registry) Lookup(marketID string) (*Workflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.flows[marketID]
	return w, ok
}

// Snapshots returns the state of every workflow ordered by market id.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	flows := make([]*Workflow, 0, len(r.flows))
	for _, w := range r.flows {
		flows = append(flows, w)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(flows))
	for _, w := range flows {
		out = append(out, w.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// CloseAll discards every held invoice and stops countdown tickers.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	flows := make([]*Workflow, 0, len(r.flows))
	for _, w := range r.flows {
		flows = append(flows, w)
	}
	r.mu.Unlock()
	for _, w := range flows {
		w.Close()
	}
}
