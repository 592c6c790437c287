package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// Backend is the subset of the JSON-RPC API the client and the wallet use.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

var _ Backend = (*ethclient.Client)(nil)

// ClientConfig holds connection parameters for the chain client.
type ClientConfig struct {
	RPCURL       string
	PollInterval time.Duration
}

// Client implements domain.ChainReader over a JSON-RPC backend.
type Client struct {
	backend      Backend
	closer       func()
	pollInterval time.Duration
}

// New dials cfg.RPCURL and returns a Client.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}
	c := NewWithBackend(ec, cfg.PollInterval)
	c.closer = ec.Close
	return c, nil
}

// NewWithBackend wraps an existing backend.
func NewWithBackend(b Backend, pollInterval time.Duration) *Client {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Client{backend: b, pollInterval: pollInterval}
}

// Backend exposes the underlying RPC backend for transaction submission.
func (c *Client) Backend() Backend { return c.backend }

// Close releases the RPC connection, if this client owns one.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// TokenDecimals reads decimals() from an ERC-20 contract.
func (c *Client) TokenDecimals(ctx context.Context, contract string) (uint8, error) {
	if !common.IsHexAddress(contract) {
		return 0, fmt.Errorf("chain: invalid contract address %q", contract)
	}
	to := common.HexToAddress(contract)
	ret, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: EncodeDecimalsCall()}, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: call decimals: %w", err)
	}
	return DecodeDecimals(ret)
}

// WaitForConfirmation polls until txHash is mined with at least the given
// number of confirmations (the inclusion block counts as one). A reverted
// transaction is an error.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string, confirmations uint64) error {
	if confirmations == 0 {
		confirmations = 1
	}
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		done, err := c.checkReceipt(ctx, hash, confirmations)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("chain: wait for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) checkReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (bool, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, nil
		}
		return false, fmt.Errorf("chain: get receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, fmt.Errorf("chain: transaction %s reverted", hash.Hex())
	}
	if confirmations == 1 || receipt.BlockNumber == nil {
		return true, nil
	}

	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("chain: block number: %w", err)
	}
	mined := receipt.BlockNumber.Uint64()
	return head >= mined && head-mined+1 >= confirmations, nil
}

// ClassifySendError maps node error text onto domain sentinels while keeping
// the node's wording.
func ClassifySendError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
		return fmt.Errorf("%w: %v", domain.ErrInsufficientFunds, err)
	}
	return err
}

var _ domain.ChainReader = (*Client)(nil)
