package chain

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"0.5", 6, "500000"},
		{"1", 6, "1000000"},
		{"12.345678", 6, "12345678"},
		{"0.0000005", 6, "1"},
		{"2", 18, "2000000000000000000"},
		{" 3.25 ", 2, "325"},
		{"0", 6, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := ParseUnits(tt.amount, tt.decimals)
			if err != nil {
				t.Fatalf("ParseUnits: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseUnits(%q, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "-1"} {
		if _, err := ParseUnits(in, 6); err == nil {
			t.Errorf("ParseUnits(%q) = nil error", in)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	if got := FormatUnits(big.NewInt(500000), 6); got != "0.5" {
		t.Errorf("FormatUnits = %s, want 0.5", got)
	}
}

func TestEncodeTransfer(t *testing.T) {
	data, err := EncodeTransfer("0x1111111111111111111111111111111111111111", big.NewInt(500000))
	if err != nil {
		t.Fatalf("EncodeTransfer: %v", err)
	}
	if len(data) != 4+32+32 {
		t.Fatalf("len = %d, want 68", len(data))
	}
	if got := hex.EncodeToString(data[:4]); got != "a9059cbb" {
		t.Errorf("selector = %s, want a9059cbb", got)
	}
	wantAddr := bytes.Repeat([]byte{0x11}, 20)
	if !bytes.Equal(data[16:36], wantAddr) {
		t.Errorf("address word = %x", data[4:36])
	}
	if new(big.Int).SetBytes(data[36:]).Int64() != 500000 {
		t.Errorf("amount word = %x", data[36:])
	}
}

func TestEncodeTransferInvalidReceiver(t *testing.T) {
	if _, err := EncodeTransfer("not-an-address", big.NewInt(1)); err == nil {
		t.Error("expected error")
	}
}

func TestAppendReference(t *testing.T) {
	base := []byte{0xa9, 0x05, 0x9c, 0xbb}
	out := AppendReference(base, "ref-1")
	if got := hex.EncodeToString(out); got != "a9059cbb"+hex.EncodeToString([]byte("ref-1")) {
		t.Errorf("AppendReference = %s", got)
	}
	if len(base) != 4 {
		t.Error("input slice modified")
	}
}

func TestPaymentCallData(t *testing.T) {
	data, units, err := PaymentCallData("0x2222222222222222222222222222222222222222", "0.5", 6, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if units.Int64() != 500000 {
		t.Errorf("units = %s", units)
	}
	if !bytes.HasSuffix(data, []byte("abc")) || len(data) != 68+3 {
		t.Errorf("call data = %x", data)
	}
}

func TestDecodeDecimals(t *testing.T) {
	word := make([]byte, 32)
	word[31] = 6
	got, err := DecodeDecimals(word)
	if err != nil {
		t.Fatalf("DecodeDecimals: %v", err)
	}
	if got != 6 {
		t.Errorf("decimals = %d, want 6", got)
	}
	if _, err := DecodeDecimals(nil); err == nil {
		t.Error("expected error for empty return data")
	}
}

func TestEncodeDecimalsCall(t *testing.T) {
	if got := hex.EncodeToString(EncodeDecimalsCall()); got != "313ce567" {
		t.Errorf("decimals selector = %s, want 313ce567", got)
	}
}
