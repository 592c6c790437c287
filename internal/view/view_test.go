package view

import (
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

func sampleEvents() []domain.MarketEvent {
	return []domain.MarketEvent{
		{ID: "1", Title: "Bitcoin above 100k", Category: "Crypto"},
		{ID: "2", Title: "Election turnout", Category: "Politics"},
		{ID: "3", Title: "ETH merge anniversary", Category: "Crypto"},
		{ID: "4", Title: "World Cup winner", Category: "Sports"},
	}
}

func TestCategories(t *testing.T) {
	got := Categories(sampleEvents())
	want := []string{"All", "Crypto", "Politics", "Sports"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Categories = %v, want %v", got, want)
	}
	if got := Categories(nil); len(got) != 1 || got[0] != "All" {
		t.Errorf("Categories(nil) = %v", got)
	}
}

func TestFilter(t *testing.T) {
	events := sampleEvents()
	tests := []struct {
		name     string
		category string
		query    string
		want     []string
	}{
		{"all empty", "All", "", []string{"1", "2", "3", "4"}},
		{"category", "Crypto", "", []string{"1", "3"}},
		{"title query case-insensitive", "All", "BITCOIN", []string{"1"}},
		{"query matches category", "All", "sport", []string{"4"}},
		{"category and query", "Crypto", "eth", []string{"3"}},
		{"no match", "Politics", "bitcoin", nil},
		{"unknown category", "Weather", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(events, tt.category, tt.query)
			var ids []string
			for _, ev := range got {
				ids = append(ids, ev.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Filter = %v, want %v", ids, tt.want)
			}
		})
	}
	if len(events) != 4 || events[0].ID != "1" {
		t.Error("Filter modified its input")
	}
}

func TestFilterComposes(t *testing.T) {
	events := sampleEvents()
	ids := func(evs []domain.MarketEvent) string {
		var out []string
		for _, ev := range evs {
			out = append(out, ev.ID)
		}
		return strings.Join(out, ",")
	}
	for _, category := range []string{"All", "Crypto", "Sports", "Weather"} {
		for _, query := range []string{"", "eth", "CUP", "zzz"} {
			both := ids(Filter(events, category, query))
			catFirst := ids(Filter(Filter(events, category, ""), AllCategories, query))
			queryFirst := ids(Filter(Filter(events, AllCategories, query), category, ""))
			if catFirst != both || queryFirst != both {
				t.Errorf("%s/%q: combined %q, category first %q, query first %q", category, query, both, catFirst, queryFirst)
			}
			again := ids(Filter(Filter(events, category, query), category, query))
			if again != both {
				t.Errorf("%s/%q: refiltering gave %q, want %q", category, query, again, both)
			}
		}
	}
}

func TestChartSeries(t *testing.T) {
	var outcomes []domain.Outcome
	for i := 0; i < 12; i++ {
		outcomes = append(outcomes, domain.Outcome{Name: string(rune('A' + i)), Probability: float64(i) / 100})
	}
	got := ChartSeries(domain.UnlockedResult{Outcomes: outcomes})
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if got[0].Name != "L" || got[0].Percentage != 11 {
		t.Errorf("first = %+v, want L at 11%%", got[0])
	}
	if got[9].Name != "C" {
		t.Errorf("last = %+v, want C", got[9])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Percentage > got[i-1].Percentage {
			t.Fatalf("not sorted descending at %d: %+v", i, got)
		}
	}
	if outcomes[0].Name != "A" {
		t.Error("ChartSeries reordered its input")
	}
}

func TestChartSeriesStableTies(t *testing.T) {
	got := ChartSeries(domain.UnlockedResult{Outcomes: []domain.Outcome{
		{Name: "x", Probability: 0.5}, {Name: "y", Probability: 0.5}, {Name: "z", Probability: 0.9},
	}})
	if got[0].Name != "z" || got[1].Name != "x" || got[2].Name != "y" {
		t.Errorf("series = %+v", got)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		0:          "0.00",
		12.3:       "12.30",
		1234.567:   "1,234.57",
		1234567.89: "1,234,567.89",
	}
	for in, want := range tests {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatLargeNumber(t *testing.T) {
	tests := map[float64]string{
		999.5:     "$999.50",
		1000:      "$1.00K",
		12345:     "$12.35K",
		2_500_000: "$2.50M",
	}
	for in, want := range tests {
		if got := FormatLargeNumber(in); got != want {
			t.Errorf("FormatLargeNumber(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestTimeRemaining(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	tests := []struct {
		left time.Duration
		want string
	}{
		{-time.Second, "Ended"},
		{0, "0m"},
		{42 * time.Minute, "42m"},
		{5*time.Hour + 12*time.Minute, "5h 12m"},
		{3*24*time.Hour + 4*time.Hour + 30*time.Minute, "3d 4h"},
	}
	for _, tt := range tests {
		if got := TimeRemaining(now.Add(tt.left), now); got != tt.want {
			t.Errorf("TimeRemaining(%v) = %q, want %q", tt.left, got, tt.want)
		}
	}
}

func TestStatusClassAndDate(t *testing.T) {
	if StatusClass(domain.ParseEventStatus("Active")) != "status-active" {
		t.Error("active")
	}
	if StatusClass(domain.EventStatusPending) != "status-pending" {
		t.Error("pending")
	}
	if StatusClass(domain.ParseEventStatus("closed")) != "status-inactive" {
		t.Error("other")
	}
	if got := FormatDate(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)); got != "Jun 15, 2025" {
		t.Errorf("FormatDate = %q", got)
	}
}

func TestRenderResult(t *testing.T) {
	var b strings.Builder
	RenderResult(&b, domain.UnlockedResult{
		Title:       "Rain tomorrow",
		Description: "Will it rain?",
		Liquidity:   15000,
		Outcomes:    []domain.Outcome{{Name: "No", Probability: 0.25}, {Name: "Yes", Probability: 0.75}},
		MarketURL:   "https://example.com/m",
		VerifiedPayment: &domain.VerifiedPayment{
			Reference: "ref-1", TxSignature: "0xabc",
		},
	})
	out := b.String()
	for _, want := range []string{"Rain tomorrow", "$15.00K", "75.00%", "25.00%", "https://example.com/m", "0xabc", "|" + strings.Repeat("#", 30)} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	chart := out[strings.Index(out, "Chart:"):]
	if strings.Index(chart, "Yes") > strings.Index(chart, "No") {
		t.Errorf("chart not sorted by probability:\n%s", chart)
	}
}

func TestRenderListActions(t *testing.T) {
	var b strings.Builder
	events := sampleEvents()[:2]
	RenderList(&b, events, false, func(id string) bool { return id == "2" }, time.Now())
	out := b.String()
	if !strings.Contains(out, "2 events (offline)") {
		t.Errorf("header missing:\n%s", out)
	}
	if strings.Count(out, ActionPay) != 1 || strings.Count(out, ActionView) != 1 {
		t.Errorf("actions wrong:\n%s", out)
	}
}
