package feed

import (
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

func toEventJSON(ev domain.MarketEvent) eventJSON {
	return eventJSON{
		ID:        ev.ID,
		Title:     ev.Title,
		Category:  ev.Category,
		Liquidity: ev.Liquidity,
		Volume:    ev.Volume,
		Status:    string(ev.Status),
		EndsAt:    unixOrZero(ev.EndsAt),
		FirstSeen: unixOrZero(ev.FirstSeenAt),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
