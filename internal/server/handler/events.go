package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
	"github.com/alanyoungcy/fortune/internal/view"
)

// EventSource is the read side of the event store.
type EventSource interface {
	Snapshot() []domain.MarketEvent
	Len() int
}

// EventHandler serves the filtered event list, categories, and charts.
type EventHandler struct {
	events EventSource
	cache  domain.UnlockCache
	now    func() time.Time
	logger *slog.Logger
}

func NewEventHandler(events EventSource, cache domain.UnlockCache, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		cache:  cache,
		now:    time.Now,
		logger: logHandler(logger, "events"),
	}
}

// eventCard is one entry of the list response with its display fields.
type eventCard struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Liquidity     float64 `json:"liquidity"`
	Volume        float64 `json:"volume"`
	LiquidityText string  `json:"liquidity_text"`
	VolumeText    string  `json:"volume_text"`
	Status        string  `json:"status"`
	StatusClass   string  `json:"status_class"`
	EndsAt        string  `json:"ends_at,omitempty"`
	Remaining     string  `json:"remaining"`
	Unlocked      bool    `json:"unlocked"`
	Action        string  `json:"action"`
}

type listEventsResponse struct {
	Events   []eventCard `json:"events"`
	Total    int         `json:"total"`
	Category string      `json:"category"`
	Query    string      `json:"query,omitempty"`
}

// ListEvents returns the events matching category and q, in store order.
// GET /api/events?category=Sports&q=rain
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		category = view.AllCategories
	}
	query := q.Get("q")

	all := h.events.Snapshot()
	matched := view.Filter(all, category, query)
	now := h.now()

	cards := make([]eventCard, 0, len(matched))
	for _, ev := range matched {
		cards = append(cards, h.card(r.Context(), ev, now))
	}
	writeJSON(w, http.StatusOK, listEventsResponse{
		Events:   cards,
		Total:    len(all),
		Category: category,
		Query:    query,
	})
}

// ListCategories returns "All" followed by categories in first-seen order.
// GET /api/categories
func (h *EventHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": view.Categories(h.events.Snapshot()),
	})
}

// GetChart returns the top outcomes of an unlocked market.
// GET /api/events/{id}/chart
func (h *EventHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}
	res, ok := h.cache.Get(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "event not unlocked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"title":  res.Title,
		"series": view.ChartSeries(res),
	})
}

func (h *EventHandler) card(ctx context.Context, ev domain.MarketEvent, now time.Time) eventCard {
	_, unlocked := h.cache.Get(ctx, ev.ID)
	c := eventCard{
		ID:            ev.ID,
		Title:         ev.Title,
		Category:      ev.Category,
		Liquidity:     ev.Liquidity,
		Volume:        ev.Volume,
		LiquidityText: view.FormatLargeNumber(ev.Liquidity),
		VolumeText:    view.FormatLargeNumber(ev.Volume),
		Status:        ev.RawStatus,
		StatusClass:   view.StatusClass(ev.Status),
		Remaining:     view.TimeRemaining(ev.EndsAt, now),
		Unlocked:      unlocked,
		Action:        view.CardAction(unlocked),
	}
	if !ev.EndsAt.IsZero() {
		c.EndsAt = ev.EndsAt.UTC().Format(time.RFC3339)
	}
	return c
}
