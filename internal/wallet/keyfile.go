// Package wallet holds the locally managed payer account: key loading,
// transaction signing, and submission through a JSON-RPC backend.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

// keyFile is the on-disk format of an encrypted private key. Binary fields
// are base64 standard encoding.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where the payer key comes from. A raw key wins over a key
// file.
type KeySource struct {
	RawPrivateKey string
	KeyFile       string
	Password      string
}

// Configured reports whether any key source is set.
func (s KeySource) Configured() bool {
	return s.RawPrivateKey != "" || s.KeyFile != ""
}

// LoadKey resolves the hex private key (without 0x) from src.
func LoadKey(src KeySource) (string, error) {
	if src.RawPrivateKey != "" {
		k := strings.TrimPrefix(strings.TrimSpace(src.RawPrivateKey), "0x")
		if _, err := decodeKeyHex(k); err != nil {
			return "", err
		}
		return k, nil
	}
	if src.KeyFile != "" {
		data, err := os.ReadFile(src.KeyFile)
		if err != nil {
			return "", fmt.Errorf("wallet/key: read key file: %w", err)
		}
		return DecryptKey(data, src.Password)
	}
	return "", errors.New("wallet/key: no key source configured")
}

// EncryptKey seals a hex private key with password (PBKDF2-HMAC-SHA256 into
// AES-256-GCM) and returns the key file JSON.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("wallet/key: password must not be empty")
	}
	keyBytes, err := decodeKeyHex(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wallet/key: generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wallet/key: generate nonce: %w", err)
	}

	addr := ""
	if s, err := NewSigner(hex.EncodeToString(keyBytes), nil); err == nil {
		addr = s.Address()
	}

	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    addr,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// DecryptKey opens a key file produced by EncryptKey and returns the hex
// private key without 0x.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("wallet/key: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("wallet/key: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("wallet/key: unsupported key file version %d", kf.Version)
	}

	fields := map[string]string{"salt": kf.Salt, "nonce": kf.Nonce, "ciphertext": kf.Ciphertext}
	raw := make(map[string][]byte, len(fields))
	for name, v := range fields {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return "", fmt.Errorf("wallet/key: decode %s: %w", name, err)
		}
		raw[name] = b
	}

	gcm, err := newGCM(password, raw["salt"])
	if err != nil {
		return "", err
	}
	if len(raw["nonce"]) != gcm.NonceSize() {
		return "", fmt.Errorf("wallet/key: nonce has %d bytes, want %d", len(raw["nonce"]), gcm.NonceSize())
	}
	plain, err := gcm.Open(nil, raw["nonce"], raw["ciphertext"], nil)
	if err != nil {
		return "", fmt.Errorf("wallet/key: decrypt (wrong password?): %w", err)
	}
	return hex.EncodeToString(plain), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("wallet/key: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet/key: create gcm: %w", err)
	}
	return gcm, nil
}

func decodeKeyHex(k string) ([]byte, error) {
	b, err := hex.DecodeString(k)
	if err != nil {
		return nil, fmt.Errorf("wallet/key: private key is not valid hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("wallet/key: expected 32-byte key, got %d bytes", len(b))
	}
	return b, nil
}
