package view

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// Card actions.
const (
	ActionPay  = "Pay to Unlock"
	ActionView = "View Details"
)

const chartWidth = 40

// CardAction returns the action offered on a card.
func CardAction(unlocked bool) string {
	if unlocked {
		return ActionView
	}
	return ActionPay
}

// RenderCard writes one event card.
func RenderCard(w io.Writer, ev domain.MarketEvent, unlocked bool, now time.Time) {
	status := ev.RawStatus
	if status == "" {
		status = string(ev.Status)
	}
	fmt.Fprintf(w, "%s  [%s]\n", ev.Title, ev.Category)
	fmt.Fprintf(w, "  status: %s (%s)  since %s\n", status, StatusClass(ev.Status), FormatDate(ev.FirstSeenAt))
	fmt.Fprintf(w, "  liquidity: %s (%s)  volume: %s (%s)\n",
		FormatLargeNumber(ev.Liquidity), FormatNumber(ev.Liquidity),
		FormatLargeNumber(ev.Volume), FormatNumber(ev.Volume))
	fmt.Fprintf(w, "  time remaining: %s  id: %s\n", TimeRemaining(ev.EndsAt, now), ev.ID)
	fmt.Fprintf(w, "  > %s\n", CardAction(unlocked))
}

// RenderList writes a header followed by every card. isUnlocked may be nil.
func RenderList(w io.Writer, events []domain.MarketEvent, live bool, isUnlocked func(id string) bool, now time.Time) {
	state := "offline"
	if live {
		state = "live"
	}
	fmt.Fprintf(w, "%d events (%s)\n", len(events), state)
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found")
		return
	}
	for _, ev := range events {
		fmt.Fprintln(w)
		RenderCard(w, ev, isUnlocked != nil && isUnlocked(ev.ID), now)
	}
}

// RenderResult writes the unlocked detail page, including the outcome chart.
func RenderResult(w io.Writer, r domain.UnlockedResult) {
	fmt.Fprintf(w, "%s\n%s\n\n", r.Title, strings.Repeat("=", len(r.Title)))
	if r.Description != "" {
		fmt.Fprintf(w, "%s\n\n", r.Description)
	}
	fmt.Fprintf(w, "Liquidity: %s\n", FormatLargeNumber(r.Liquidity))
	fmt.Fprintf(w, "Created:   %s\n", FormatDate(r.CreatedAt))
	fmt.Fprintf(w, "Updated:   %s\n", FormatDate(r.UpdatedAt))
	if r.MarketURL != "" {
		fmt.Fprintf(w, "Market:    %s\n", r.MarketURL)
	}

	fmt.Fprintln(w, "\nOutcomes:")
	for _, o := range r.Outcomes {
		fmt.Fprintf(w, "  %-30s %s\n", o.Name, FormatPercent(o.Probability))
	}

	if series := ChartSeries(r); len(series) > 0 {
		fmt.Fprintln(w, "\nChart:")
		RenderChart(w, series, chartWidth)
	}

	if vp := r.VerifiedPayment; vp != nil {
		fmt.Fprintln(w, "\nVerified payment:")
		fmt.Fprintf(w, "  reference: %s\n", vp.Reference)
		fmt.Fprintf(w, "  tx:        %s\n", vp.TxSignature)
		if !vp.VerifiedAt.IsZero() {
			fmt.Fprintf(w, "  verified:  %s\n", vp.VerifiedAt.Format(time.RFC3339))
		}
	}
}

// RenderChart draws horizontal bars scaled so 100% spans width cells.
func RenderChart(w io.Writer, series []ChartPoint, width int) {
	nameWidth := 0
	for _, p := range series {
		if n := len(p.Name); n > nameWidth {
			nameWidth = n
		}
	}
	for _, p := range series {
		cells := int(p.Percentage/100*float64(width) + 0.5)
		if cells < 0 {
			cells = 0
		}
		if cells > width {
			cells = width
		}
		fmt.Fprintf(w, "  %-*s |%s%s| %6.2f%%\n",
			nameWidth, p.Name, strings.Repeat("#", cells), strings.Repeat(" ", width-cells), p.Percentage)
	}
}
