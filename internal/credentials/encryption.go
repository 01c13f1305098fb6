package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations is the PBKDF2 iteration count for deriving the AES key
	// from the operator master secret.
	kdfIterations = 120_000
	keySize       = 32 // AES-256
)

// kdfSalt is a fixed application salt for the master-secret KDF. The KDF
// must be deterministic (the same secret always yields the same key);
// per-record randomness comes from the GCM nonce, never from here.
var kdfSalt = []byte("chat_gateway/credentials/v1")

// Encryption provides AES-256-GCM encryption/decryption for provider API
// keys. Every Encrypt call uses a fresh random nonce which is prepended to
// the ciphertext; nothing is ever sealed under a fixed nonce.
type Encryption struct {
	key []byte
}

// NewEncryption creates an encryption service from a raw 32-byte key
func NewEncryption(key []byte) (*Encryption, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: must be %d bytes, got %d", keySize, len(key))
	}
	return &Encryption{key: key}, nil
}

// NewEncryptionFromSecret derives the AES key from the operator-supplied
// master secret via PBKDF2-SHA256. An empty secret is refused; callers must
// treat that as fatal at startup, never fall back to a built-in default.
func NewEncryptionFromSecret(secret string) (*Encryption, error) {
	if secret == "" {
		return nil, fmt.Errorf("master encryption secret cannot be empty")
	}
	key := pbkdf2.Key([]byte(secret), kdfSalt, kdfIterations, keySize, sha256.New)
	return NewEncryption(key)
}

// GenerateSecret returns a random base64 secret suitable for MASTER_KEY.
func GenerateSecret() (string, error) {
	raw := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Encrypt seals plaintext with AES-GCM and returns base64(nonce || ciphertext)
func (e *Encryption) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens base64(nonce || ciphertext) produced by Encrypt
func (e *Encryption) Decrypt(ciphertextBase64 string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}
