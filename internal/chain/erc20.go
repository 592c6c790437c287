// Package chain builds ERC-20 payment call data and reads token metadata and
// transaction receipts from an EVM JSON-RPC endpoint.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const erc20ABIJSON = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"decimals","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("chain: parse erc20 abi: %v", err))
	}
	return parsed
}

// ParseUnits converts a decimal token amount ("0.5") into base units for a
// token with the given decimals. Excess fractional digits are rounded.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("chain: parse amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("chain: negative amount %q", amount)
	}
	return d.Shift(int32(decimals)).Round(0).BigInt(), nil
}

// FormatUnits is the inverse of ParseUnits.
func FormatUnits(units *big.Int, decimals uint8) string {
	return decimal.NewFromBigInt(units, -int32(decimals)).String()
}

// EncodeTransfer returns the call data for transfer(receiver, amount).
func EncodeTransfer(receiver string, amount *big.Int) ([]byte, error) {
	if !common.IsHexAddress(receiver) {
		return nil, fmt.Errorf("chain: invalid receiver address %q", receiver)
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errors.New("chain: transfer amount must be non-negative")
	}
	data, err := erc20ABI.Pack("transfer", common.HexToAddress(receiver), amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack transfer: %w", err)
	}
	return data, nil
}

// AppendReference appends the UTF-8 bytes of reference to callData with no
// separator or length prefix. Token contracts ignore trailing call data; the
// backend scans for it to match a transfer to its invoice.
func AppendReference(callData []byte, reference string) []byte {
	out := make([]byte, 0, len(callData)+len(reference))
	out = append(out, callData...)
	return append(out, reference...)
}

// EncodeDecimalsCall returns the call data for decimals().
func EncodeDecimalsCall() []byte {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		panic(fmt.Sprintf("chain: pack decimals: %v", err))
	}
	return data
}

// DecodeDecimals decodes the return data of decimals().
func DecodeDecimals(ret []byte) (uint8, error) {
	out, err := erc20ABI.Unpack("decimals", ret)
	if err != nil {
		return 0, fmt.Errorf("chain: unpack decimals: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("chain: unpack decimals: got %d values", len(out))
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: unpack decimals: unexpected type %T", out[0])
	}
	return d, nil
}

// PaymentCallData builds the full payment call data for an invoice: the
// transfer of amount (in whole token units) to receiver followed by the
// reference bytes.
func PaymentCallData(receiver, amount string, decimals uint8, reference string) ([]byte, *big.Int, error) {
	units, err := ParseUnits(amount, decimals)
	if err != nil {
		return nil, nil, err
	}
	data, err := EncodeTransfer(receiver, units)
	if err != nil {
		return nil, nil, err
	}
	return AppendReference(data, reference), units, nil
}
