package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoKey is returned when no encryption secret is configured.
	ErrNoKey = errors.New("no credential encryption key configured")
	// ErrDecrypt is returned for tampered, truncated, or wrong-key blobs.
	ErrDecrypt = errors.New("failed to decrypt credential blob")
)

const (
	ivSize  = 12
	tagSize = 16

	// aadTag binds every ciphertext to this application so blobs cannot be
	// replayed from another system sharing the same key.
	aadTag = "agency-server:credentials"
)

// Encryptor provides AES-256-GCM encryption for credential blobs stored at
// rest. Blobs are hex-encoded as IV || tag || ciphertext.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates an Encryptor from the configured secret. A secret that
// is not exactly 32 bytes is hashed with SHA-256 to derive the AES-256 key.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrNoKey
	}

	key := []byte(secret)
	if len(key) != 32 {
		sum := sha256.Sum256(key)
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Encrypt encrypts plaintext with a fresh random IV and returns the
// hex-encoded blob.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	// Seal appends ciphertext || tag; the stored layout is iv || tag || ciphertext.
	sealed := e.gcm.Seal(nil, iv, []byte(plaintext), []byte(aadTag))
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, ivSize+tagSize+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return hex.EncodeToString(blob), nil
}

// Decrypt splits a hex blob back into IV/tag/ciphertext by fixed offsets,
// verifies the authentication tag, and returns the plaintext. Any tampering
// or truncation fails with ErrDecrypt rather than returning corrupt data.
func (e *Encryptor) Decrypt(blob string) (string, error) {
	raw, err := hex.DecodeString(blob)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < ivSize+tagSize {
		return "", ErrDecrypt
	}

	iv := raw[:ivSize]
	tag := raw[ivSize : ivSize+tagSize]
	ciphertext := raw[ivSize+tagSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := e.gcm.Open(nil, iv, sealed, []byte(aadTag))
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plaintext), nil
}

// EncryptCredentials JSON-serializes a credential object and encrypts it.
func (e *Encryptor) EncryptCredentials(v interface{}) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return e.Encrypt(string(plaintext))
}

// DecryptCredentials decrypts a blob and deserializes it into v.
func (e *Encryptor) DecryptCredentials(blob string, v interface{}) error {
	plaintext, err := e.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), v); err != nil {
		return fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return nil
}
