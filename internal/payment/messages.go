package payment

import (
	"errors"
	"strings"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// Verification progress shown while a payment is being confirmed.
const (
	ProgressConfirming = "Waiting for blockchain confirmation..."
	ProgressIndexing   = "Waiting for system processing..."
	ProgressVerifying  = "Verifying payment details..."
)

// User-facing messages.
const (
	MsgConnectWallet   = "Please connect your wallet first"
	MsgMissingContract = "Contract address not provided by server"
	MsgInvoiceExpired  = "Invoice expired. Please request a new one."
	MsgInProgress      = "A payment is already in progress."
	MsgRejected        = "Transaction rejected by user."
	MsgNoFunds         = "Insufficient funds for gas or payment amount."
	MsgGenericFailure  = "Payment failed. Please try again."
)

// UserMessage turns a failed attempt into the message shown to the user.
// Wallet rejections and balance problems get fixed wording; anything else
// passes the error text through.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, domain.ErrWalletNotConnected), errors.Is(err, domain.ErrNoInvoice):
		return MsgConnectWallet
	case errors.Is(err, domain.ErrMissingContract):
		return MsgMissingContract
	case errors.Is(err, domain.ErrInvoiceExpired):
		return MsgInvoiceExpired
	case errors.Is(err, domain.ErrPaymentInProgress):
		return MsgInProgress
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "User rejected"):
		return MsgRejected
	case strings.Contains(msg, "insufficient funds"):
		return MsgNoFunds
	case strings.TrimSpace(msg) == "":
		return MsgGenericFailure
	}
	return msg
}
