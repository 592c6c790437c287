package view

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/alanyoungcy/fortune/internal/domain"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatNumber renders n with two decimals and thousands separators.
func FormatNumber(n float64) string {
	return printer.Sprintf("%.2f", n)
}

// FormatLargeNumber renders n as dollars with K or M suffix.
func FormatLargeNumber(n float64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("$%.2fM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("$%.2fK", n/1_000)
	}
	return fmt.Sprintf("$%.2f", n)
}

// TimeRemaining renders the time until end: "Ended" once past, else the two
// most significant units ("3d 4h", "5h 12m", "42m").
func TimeRemaining(end, now time.Time) string {
	remaining := end.Unix() - now.Unix()
	if remaining < 0 {
		return "Ended"
	}
	days := remaining / 86400
	hours := (remaining % 86400) / 3600
	minutes := (remaining % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// StatusClass maps an event status to its badge class.
func StatusClass(s domain.EventStatus) string {
	switch s {
	case domain.EventStatusActive:
		return "status-active"
	case domain.EventStatusPending:
		return "status-pending"
	}
	return "status-inactive"
}

// FormatDate renders t as "Jan 2, 2006".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Jan 2, 2006")
}

// FormatPercent renders a probability in [0,1] as "xx.xx%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p*100)
}
