package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions with a secp256k1 key for one chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewSigner creates a Signer from a hex private key. chainID may be nil when
// the signer is only used to derive the address.
func NewSigner(privateKeyHex string, chainID *big.Int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the checksummed account address.
func (s *Signer) Address() string { return s.address.Hex() }

// ChainID returns the chain the signer signs for.
func (s *Signer) ChainID() *big.Int { return s.chainID }

// SignTx signs tx with the latest signer for the configured chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	if s.chainID == nil {
		return nil, fmt.Errorf("wallet/signer: chain id not set")
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet/signer: sign tx: %w", err)
	}
	return signed, nil
}
