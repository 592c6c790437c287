package payment

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"rejected sentinel", domain.ErrUserRejected, MsgRejected},
		{"rejected wrapped text", errors.New("wallet: User rejected the request."), MsgRejected},
		{"insufficient funds", fmt.Errorf("%w: insufficient funds for gas * price + value", domain.ErrInsufficientFunds), MsgNoFunds},
		{"passthrough", errors.New("Transaction not found"), "Transaction not found"},
		{"empty", errors.New(""), MsgGenericFailure},
		{"no wallet", domain.ErrWalletNotConnected, MsgConnectWallet},
		{"missing contract", domain.ErrMissingContract, MsgMissingContract},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCountdown(t *testing.T) {
	base := time.Unix(1_760_000_000, 0)
	tests := []struct {
		left time.Duration
		want string
	}{
		{10*time.Minute + 3*time.Second, "10:03"},
		{65 * time.Second, "1:05"},
		{59 * time.Second, "0:59"},
		{time.Second, "0:01"},
		{0, "Expired"},
		{-time.Minute, "Expired"},
	}
	for _, tt := range tests {
		if got := Countdown(base.Add(tt.left), base); got != tt.want {
			t.Errorf("Countdown(%v) = %q, want %q", tt.left, got, tt.want)
		}
	}
}

func TestRegistrySharesWorkflows(t *testing.T) {
	h := newHarness()
	r := NewRegistry(DefaultConfig(), h.deps(), discard())

	var seen []string
	r.OnSnapshot(func(s Snapshot) { seen = append(seen, s.MarketID) })

	a := r.Get("a")
	if r.Get("a") != a {
		t.Fatal("Get returned a different workflow for the same market")
	}
	r.Get("b")
	if _, ok := r.Lookup("c"); ok {
		t.Error("Lookup created a workflow")
	}

	a.Close()
	if len(seen) != 1 || seen[0] != "a" {
		t.Errorf("listener saw %v", seen)
	}
	snaps := r.Snapshots()
	if len(snaps) != 2 || snaps[0].MarketID != "a" || snaps[1].MarketID != "b" {
		t.Errorf("snapshots = %+v", snaps)
	}
}
