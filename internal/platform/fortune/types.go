package fortune

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// statusPaymentRequired is the explicit discriminator for the invoice variant
// of the detail endpoint.
const statusPaymentRequired = "payment_required"

// flexFloat unmarshals from a JSON number or a numeric string, so fields the
// backend serialises either way decode the same.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// unixTime converts Unix seconds to a UTC time. Zero stays the zero time.
func unixTime(sec flexFloat) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).UTC()
}

// --------------------------------------------------------------------------
// Stream DTOs
// --------------------------------------------------------------------------

// APIEvent is one market event as carried on the event stream.
type APIEvent struct {
	UUID          string    `json:"uuid"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	ClobLiquidity flexFloat `json:"clob_liquidity"`
	Volume        flexFloat `json:"volume"`
	Status        string    `json:"status"`
	EndDate       flexFloat `json:"end_date"`
	Timestamp     flexFloat `json:"timestamp"`
}

// ToDomain converts the wire event into a domain.MarketEvent.
func (e APIEvent) ToDomain() domain.MarketEvent {
	return domain.MarketEvent{
		ID:          e.UUID,
		Title:       e.Title,
		Category:    e.Category,
		Liquidity:   float64(e.ClobLiquidity),
		Volume:      float64(e.Volume),
		Status:      domain.ParseEventStatus(e.Status),
		RawStatus:   e.Status,
		EndsAt:      unixTime(e.EndDate),
		FirstSeenAt: unixTime(e.Timestamp),
	}
}

// --------------------------------------------------------------------------
// Detail / verification DTOs
// --------------------------------------------------------------------------

// APIInvoice is the invoice object of a payment-required response.
type APIInvoice struct {
	ReceiverAddress string      `json:"receiver_address"`
	AmountUSDC      json.Number `json:"amount_usdc"`
	Currency        string      `json:"currency"`
	Network         string      `json:"network"`
	Reference       string      `json:"reference"`
	ContractAddress string      `json:"contract_address"`
	ExpiresAt       flexFloat   `json:"expires_at"`
}

// ToDomain converts the wire invoice into a domain.PaymentInvoice.
func (i APIInvoice) ToDomain() domain.PaymentInvoice {
	return domain.PaymentInvoice{
		ReceiverAddress: i.ReceiverAddress,
		AmountUnits:     i.AmountUSDC.String(),
		Currency:        i.Currency,
		Network:         i.Network,
		ContractAddress: i.ContractAddress,
		Reference:       i.Reference,
		ExpiresAt:       unixTime(i.ExpiresAt),
	}
}

// APIOutcome is one outcome of an unlocked market.
type APIOutcome struct {
	OutcomeID   string    `json:"outcome_id"`
	Name        string    `json:"name"`
	Probability flexFloat `json:"probability"`
}

// APIVerifiedPayment describes the payment matched by the backend.
type APIVerifiedPayment struct {
	Reference   string    `json:"reference"`
	TxSignature string    `json:"tx_signature"`
	VerifiedAt  flexFloat `json:"verified_at"`
}

// APIDetailResponse covers both shapes of GET and POST /event/{uuid}. The
// Status field decides which half is meaningful.
type APIDetailResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Invoice *APIInvoice `json:"invoice,omitempty"`

	UUID            string              `json:"uuid"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	ClobLiquidity   flexFloat           `json:"clob_liquidity"`
	CreatedAt       flexFloat           `json:"created_at"`
	UpdatedAt       flexFloat           `json:"updated_at"`
	Outcomes        []APIOutcome        `json:"outcomes"`
	PolymarketURL   string              `json:"polymarket_url"`
	VerifiedPayment *APIVerifiedPayment `json:"verified_payment,omitempty"`
}

// ToDomainResult converts the unlocked half of the response.
func (r APIDetailResponse) ToDomainResult() domain.UnlockedResult {
	res := domain.UnlockedResult{
		Status:      r.Status,
		MarketID:    r.UUID,
		Title:       r.Title,
		Description: r.Description,
		Liquidity:   float64(r.ClobLiquidity),
		CreatedAt:   unixTime(r.CreatedAt),
		UpdatedAt:   unixTime(r.UpdatedAt),
		Outcomes:    make([]domain.Outcome, 0, len(r.Outcomes)),
		MarketURL:   r.PolymarketURL,
	}
	for _, o := range r.Outcomes {
		res.Outcomes = append(res.Outcomes, domain.Outcome{
			ID:          o.OutcomeID,
			Name:        o.Name,
			Probability: float64(o.Probability),
		})
	}
	if vp := r.VerifiedPayment; vp != nil {
		res.VerifiedPayment = &domain.VerifiedPayment{
			Reference:   vp.Reference,
			TxSignature: vp.TxSignature,
			VerifiedAt:  unixTime(vp.VerifiedAt),
		}
	}
	return res
}

// APIVerifyRequest is the body of POST /event/{uuid}.
type APIVerifyRequest struct {
	Reference    string `json:"reference"`
	TxSignature  string `json:"tx_signature"`
	PayerAddress string `json:"payer_address"`
}

// apiErrorBody captures the error shapes the backend uses.
type apiErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
