// Package view derives render-ready data from the event store and unlocked
// results, and renders it as text.
package view

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// AllCategories is the synthetic category that matches every event.
const AllCategories = "All"

// maxChartOutcomes caps the number of bars in an outcome chart.
const maxChartOutcomes = 10

// ChartPoint is one bar of the outcome chart.
type ChartPoint struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// Categories returns "All" followed by the distinct categories of events in
// order of first appearance.
func Categories(events []domain.MarketEvent) []string {
	out := []string{AllCategories}
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.Category]; ok {
			continue
		}
		seen[ev.Category] = struct{}{}
		out = append(out, ev.Category)
	}
	return out
}

// Filter keeps events in category (or any category for "All" or "") whose
// title or category contains query, case-insensitively. Order is preserved
// and events is not modified.
func Filter(events []domain.MarketEvent, category, query string) []domain.MarketEvent {
	q := strings.ToLower(query)
	out := make([]domain.MarketEvent, 0, len(events))
	for _, ev := range events {
		if category != "" && category != AllCategories && ev.Category != category {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(ev.Title), q) &&
			!strings.Contains(strings.ToLower(ev.Category), q) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// ChartSeries returns the result's outcomes by descending probability,
// at most ten, as percentages. Ties keep their original order.
func ChartSeries(result domain.UnlockedResult) []ChartPoint {
	outcomes := append([]domain.Outcome(nil), result.Outcomes...)
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Probability > outcomes[j].Probability
	})
	if len(outcomes) > maxChartOutcomes {
		outcomes = outcomes[:maxChartOutcomes]
	}

	out := make([]ChartPoint, len(outcomes))
	for i, o := range outcomes {
		out[i] = ChartPoint{Name: o.Name, Percentage: o.Probability * 100}
	}
	return out
}
