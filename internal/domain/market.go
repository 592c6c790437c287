package domain

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle state reported for a market event.
type EventStatus string

const (
	EventStatusActive  EventStatus = "active"
	EventStatusPending EventStatus = "pending"
	EventStatusOther   EventStatus = "other"
)

// ParseEventStatus maps a raw status string onto the known set. Anything that
// is not active or pending collapses into EventStatusOther.
func ParseEventStatus(s string) EventStatus {
	switch st := EventStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case EventStatusActive, EventStatusPending:
		return st
	}
	return EventStatusOther
}

// MarketEvent is a live-updating prediction market record streamed from the
// backend. Identity is ID; later records with the same ID replace earlier ones.
type MarketEvent struct {
	ID          string
	Title       string
	Category    string
	Liquidity   float64
	Volume      float64
	Status      EventStatus
	RawStatus   string
	EndsAt      time.Time
	FirstSeenAt time.Time
}

// Outcome is one possible resolution of a market with its probability in [0,1].
type Outcome struct {
	ID          string  `json:"outcome_id"`
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// VerifiedPayment describes the payment the backend matched to an invoice.
type VerifiedPayment struct {
	Reference   string    `json:"reference"`
	TxSignature string    `json:"tx_signature"`
	VerifiedAt  time.Time `json:"verified_at"`
}

// UnlockedResult is the detailed market content revealed after payment.
type UnlockedResult struct {
	Status          string           `json:"status"`
	MarketID        string           `json:"uuid"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Liquidity       float64          `json:"clob_liquidity"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Outcomes        []Outcome        `json:"outcomes"`
	MarketURL       string           `json:"polymarket_url,omitempty"`
	VerifiedPayment *VerifiedPayment `json:"verified_payment,omitempty"`
}
