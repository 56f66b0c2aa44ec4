package backend

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the master key and every derived key.
const KeySize = 32

// HKDF info strings for keys derived from the master key.
const (
	InfoStorageSealing = "multisigcheck/storage-sealing"
	InfoSessionSigning = "multisigcheck/session-signing"
)

var ErrInvalidKeyLength = errors.New("invalid key length")

// GenerateMasterKey returns a new random master key, hex encoded.
func GenerateMasterKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate master key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// ReadMasterKey decodes hexValue, or the contents of path when hexValue is
// empty.
func ReadMasterKey(hexValue, path string) ([]byte, error) {
	h := hexValue
	if h == "" {
		if path == "" {
			return nil, errors.New("no master key configured")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read master key: %w", err)
		}
		h = string(data)
	}
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes (hex %d chars)", ErrInvalidKeyLength, KeySize, 2*KeySize)
	}
	return b, nil
}

// DeriveKey derives an independent subkey for one purpose.
func DeriveKey(master []byte, info string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncryptAESGCM seals plaintext and prepends the nonce. associated is
// authenticated but not stored; the same value must be passed to decrypt.
func EncryptAESGCM(key, plaintext, associated []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plaintext, associated)
	return append(nonce, ct...), nil
}

func DecryptAESGCM(key, blob, associated []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(blob) < ns {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, blob[:ns], blob[ns:], associated)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
