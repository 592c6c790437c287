package domain

import (
	"context"
	"math/big"
)

// TxRequest is a transaction the wallet is asked to sign and broadcast.
type TxRequest struct {
	From  string
	To    string
	Data  []byte
	Value *big.Int
	Gas   uint64
}

// Wallet is a connected account able to submit transactions.
type Wallet interface {
	Address() string
	SendTransaction(ctx context.Context, req TxRequest) (txHash string, err error)
}

// ChainReader answers read-only questions about the chain.
type ChainReader interface {
	TokenDecimals(ctx context.Context, contract string) (uint8, error)
	WaitForConfirmation(ctx context.Context, txHash string, confirmations uint64) error
}
