package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/fortune/internal/chain"
	"github.com/alanyoungcy/fortune/internal/domain"
)

// TxBackend submits signed transactions. *ethclient.Client and
// chain.Backend satisfy it.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// ApproveFunc is asked before every submission. Returning false rejects the
// request.
type ApproveFunc func(ctx context.Context, req domain.TxRequest) (bool, error)

// LocalWallet implements domain.Wallet with a key held in process.
type LocalWallet struct {
	signer  *Signer
	backend TxBackend
	approve ApproveFunc
	logger  *slog.Logger
}

// NewLocalWallet creates a wallet. approve may be nil to submit without
// asking.
func NewLocalWallet(signer *Signer, backend TxBackend, approve ApproveFunc, logger *slog.Logger) *LocalWallet {
	return &LocalWallet{
		signer:  signer,
		backend: backend,
		approve: approve,
		logger:  logger.With(slog.String("component", "wallet"), slog.String("address", signer.Address())),
	}
}

// Address returns the payer address.
func (w *LocalWallet) Address() string { return w.signer.Address() }

// SendTransaction signs and broadcasts req as a legacy transaction with the
// node's suggested gas price and returns the 0x transaction hash.
func (w *LocalWallet) SendTransaction(ctx context.Context, req domain.TxRequest) (string, error) {
	if req.From != "" && !strings.EqualFold(req.From, w.signer.Address()) {
		return "", fmt.Errorf("wallet: request from %s does not match wallet %s", req.From, w.signer.Address())
	}
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("wallet: invalid destination %q", req.To)
	}

	if w.approve != nil {
		ok, err := w.approve(ctx, req)
		if err != nil {
			return "", fmt.Errorf("wallet: approval: %w", err)
		}
		if !ok {
			w.logger.InfoContext(ctx, "transaction rejected by user", slog.String("to", req.To))
			return "", domain.ErrUserRejected
		}
	}

	from := common.HexToAddress(w.signer.Address())
	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("wallet: pending nonce: %w", err)
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("wallet: suggest gas price: %w", err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := common.HexToAddress(req.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      req.Gas,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})

	signed, err := w.signer.SignTx(tx)
	if err != nil {
		return "", err
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return "", chain.ClassifySendError(err)
	}

	hash := signed.Hash().Hex()
	w.logger.InfoContext(ctx, "transaction submitted",
		slog.String("tx_hash", hash),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", req.Gas),
	)
	return hash, nil
}

var _ domain.Wallet = (*LocalWallet)(nil)
