package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limited")
	ErrPaymentRequired    = errors.New("payment required")
	ErrStreamClosed       = errors.New("event stream closed")
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrNoInvoice          = errors.New("no invoice held")
	ErrMissingContract    = errors.New("contract address not provided by server")
	ErrInvoiceExpired     = errors.New("invoice expired")
	ErrPaymentInProgress  = errors.New("payment already in progress")
	ErrUserRejected       = errors.New("User rejected the request")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrLockHeld           = errors.New("lock held by another holder")
)
