package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/fortune/internal/domain"
)

type fakeBackend struct {
	mu          sync.Mutex
	head        uint64
	receipt     *types.Receipt
	receiptCall int
	minedAfter  int
	callRet     []byte
	callErr     error
	lastCall    ethereum.CallMsg
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(80002), nil }

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
	return f.head, nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastCall = call
	return f.callRet, f.callErr
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCall++
	if f.receiptCall <= f.minedAfter {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error)             { return big.NewInt(1), nil }
func (f *fakeBackend) SendTransaction(context.Context, *types.Transaction) error      { return nil }

func TestTokenDecimals(t *testing.T) {
	ret := make([]byte, 32)
	ret[31] = 18
	fb := &fakeBackend{callRet: ret}
	c := NewWithBackend(fb, time.Millisecond)

	got, err := c.TokenDecimals(context.Background(), "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("TokenDecimals: %v", err)
	}
	if got != 18 {
		t.Errorf("decimals = %d", got)
	}
	if fb.lastCall.To == nil || fb.lastCall.To.Hex() != "0x2222222222222222222222222222222222222222" {
		t.Errorf("call to = %v", fb.lastCall.To)
	}
}

func TestTokenDecimalsCallError(t *testing.T) {
	c := NewWithBackend(&fakeBackend{callErr: errors.New("execution reverted")}, time.Millisecond)
	if _, err := c.TokenDecimals(context.Background(), "0x2222222222222222222222222222222222222222"); err == nil {
		t.Error("expected error")
	}
}

func TestWaitForConfirmationPollsUntilMined(t *testing.T) {
	fb := &fakeBackend{
		minedAfter: 3,
		receipt:    &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
	}
	c := NewWithBackend(fb, time.Millisecond)

	if err := c.WaitForConfirmation(context.Background(), "0xabc", 1); err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
	if fb.receiptCall != 4 {
		t.Errorf("receipt polls = %d, want 4", fb.receiptCall)
	}
}

func TestWaitForConfirmationDepth(t *testing.T) {
	fb := &fakeBackend{
		head:    9,
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
	}
	c := NewWithBackend(fb, time.Millisecond)

	if err := c.WaitForConfirmation(context.Background(), "0xabc", 3); err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
	if fb.head < 12 {
		t.Errorf("head = %d, want at least 12 for 3 confirmations", fb.head)
	}
}

func TestWaitForConfirmationReverted(t *testing.T) {
	fb := &fakeBackend{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}}
	c := NewWithBackend(fb, time.Millisecond)

	err := c.WaitForConfirmation(context.Background(), "0xabc", 1)
	if err == nil || !strings.Contains(err.Error(), "reverted") {
		t.Errorf("err = %v, want reverted", err)
	}
}

func TestWaitForConfirmationCancelled(t *testing.T) {
	fb := &fakeBackend{minedAfter: 1 << 30}
	c := NewWithBackend(fb, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.WaitForConfirmation(ctx, "0xabc", 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClassifySendError(t *testing.T) {
	err := ClassifySendError(errors.New("insufficient funds for gas * price + value"))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
	other := errors.New("nonce too low")
	if ClassifySendError(other) != other {
		t.Error("unrelated errors must pass through")
	}
	if ClassifySendError(nil) != nil {
		t.Error("nil must stay nil")
	}
}
