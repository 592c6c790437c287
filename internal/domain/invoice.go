package domain

import "time"

// PaymentInvoice holds the server-issued terms for unlocking one market.
// AmountUnits is a decimal string in whole token units (e.g. "0.5").
type PaymentInvoice struct {
	ReceiverAddress string    `json:"receiver_address"`
	AmountUnits     string    `json:"amount"`
	Currency        string    `json:"currency"`
	Network         string    `json:"network"`
	ContractAddress string    `json:"contract_address"`
	Reference       string    `json:"reference"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the invoice can no longer be paid at now.
func (i PaymentInvoice) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// DetailKind discriminates the two shapes the detail endpoint can return.
type DetailKind int

const (
	DetailPaymentRequired DetailKind = iota + 1
	DetailUnlocked
)

// MarketDetail is the tagged result of a detail request: either an invoice
// that must be paid or the unlocked result itself.
type MarketDetail struct {
	Kind    DetailKind
	Message string
	Invoice *PaymentInvoice
	Result  *UnlockedResult
}

// PaymentProof is what the client presents to the backend after paying.
type PaymentProof struct {
	Reference    string
	TxSignature  string
	PayerAddress string
}
