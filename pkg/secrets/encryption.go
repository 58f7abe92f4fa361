package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sealer encrypts each secret with its own AES-256-GCM key derived from
// the master key and the secret ID with HKDF.
type sealer struct {
	masterKey []byte
}

func (s sealer) aead(secretID string) (cipher.AEAD, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.masterKey, []byte(secretID), nil), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal returns hex(nonce || ciphertext).
func (s sealer) seal(secretID string, plaintext []byte) (string, error) {
	gcm, err := s.aead(secretID)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return hex.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

func (s sealer) open(secretID string, sealed string) (string, error) {
	data, err := hex.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	gcm, err := s.aead(secretID)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
