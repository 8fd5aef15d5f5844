package utils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the length of both process keys (AES-256 / HMAC-SHA256).
const KeySize = 32

var (
	// ErrDecryptionFailure is returned whenever a stored attribute cannot be
	// authenticated. Callers must treat it as a data-integrity incident.
	ErrDecryptionFailure = errors.New("decryption failure")

	ErrInvalidKey = errors.New("invalid key material")
)

// KeyMaterial holds the two process-wide secrets. It is built once at startup
// and handed to NewFieldCipher / NewBlindIndexer.
type KeyMaterial struct {
	EncryptionKey [KeySize]byte
	BlindIndexKey [KeySize]byte
}

// ParseKeyMaterial decodes two base64-encoded 32-byte keys.
// Generate one with: openssl rand -base64 32
func ParseKeyMaterial(encryptionKeyB64, blindIndexKeyB64 string) (KeyMaterial, error) {
	var km KeyMaterial

	enc, err := decodeKey("ENCRYPTION_KEY", encryptionKeyB64)
	if err != nil {
		return km, err
	}
	blind, err := decodeKey("BLIND_INDEX_KEY", blindIndexKeyB64)
	if err != nil {
		return km, err
	}
	copy(km.EncryptionKey[:], enc)
	copy(km.BlindIndexKey[:], blind)

	if err := km.Validate(); err != nil {
		return KeyMaterial{}, err
	}
	return km, nil
}

// GenerateKeyMaterial returns a fresh random key pair.
func GenerateKeyMaterial() (KeyMaterial, error) {
	var km KeyMaterial
	if _, err := io.ReadFull(rand.Reader, km.EncryptionKey[:]); err != nil {
		return km, fmt.Errorf("generate encryption key: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, km.BlindIndexKey[:]); err != nil {
		return km, fmt.Errorf("generate blind index key: %w", err)
	}
	return km, nil
}

// Validate rejects zeroed keys and a blind index key equal to the encryption key.
func (km KeyMaterial) Validate() error {
	var zero [KeySize]byte
	if km.EncryptionKey == zero {
		return fmt.Errorf("%w: ENCRYPTION_KEY is all zeros", ErrInvalidKey)
	}
	if km.BlindIndexKey == zero {
		return fmt.Errorf("%w: BLIND_INDEX_KEY is all zeros", ErrInvalidKey)
	}
	if bytes.Equal(km.EncryptionKey[:], km.BlindIndexKey[:]) {
		return fmt.Errorf("%w: BLIND_INDEX_KEY must differ from ENCRYPTION_KEY", ErrInvalidKey)
	}
	return nil
}

// EncodedKeys returns both keys base64-encoded, for rehabctl keygen only.
func (km KeyMaterial) EncodedKeys() (encryptionKey, blindIndexKey string) {
	return base64.StdEncoding.EncodeToString(km.EncryptionKey[:]),
		base64.StdEncoding.EncodeToString(km.BlindIndexKey[:])
}

// String keeps keys out of logs and %v formatting.
func (km KeyMaterial) String() string { return "KeyMaterial{redacted}" }

// GoString keeps keys out of %#v formatting.
func (km KeyMaterial) GoString() string { return km.String() }

func decodeKey(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: %s environment variable not set", ErrInvalidKey, name)
	}
	keyBytes, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be base64-encoded", ErrInvalidKey, name)
	}
	if len(keyBytes) != KeySize {
		return nil, fmt.Errorf("%w: %s must decode to exactly 32 bytes (256 bits)", ErrInvalidKey, name)
	}
	return keyBytes, nil
}

// EncryptedAttribute is one encrypted PII value. The IV is produced by
// FieldCipher.Encrypt and is never supplied by callers.
type EncryptedAttribute struct {
	Ciphertext []byte
	IV         []byte
}

// IsZero reports whether the attribute holds no value (optional field left empty).
func (a EncryptedAttribute) IsZero() bool {
	return len(a.Ciphertext) == 0 && len(a.IV) == 0
}

// FieldCipher encrypts single PII values with AES-256-GCM.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher builds a cipher from the encryption half of km.
func NewFieldCipher(km KeyMaterial) (*FieldCipher, error) {
	block, err := aes.NewCipher(km.EncryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &FieldCipher{aead: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *FieldCipher) Encrypt(plaintext string) (EncryptedAttribute, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return EncryptedAttribute{}, fmt.Errorf("generate IV: %w", err)
	}
	ct := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	return EncryptedAttribute{Ciphertext: ct, IV: iv}, nil
}

// EncryptOptional leaves empty values unencrypted (zero attribute).
func (c *FieldCipher) EncryptOptional(plaintext string) (EncryptedAttribute, error) {
	if plaintext == "" {
		return EncryptedAttribute{}, nil
	}
	return c.Encrypt(plaintext)
}

// Decrypt opens attr. Any failure yields ErrDecryptionFailure and no plaintext.
func (c *FieldCipher) Decrypt(attr EncryptedAttribute) (string, error) {
	if len(attr.IV) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: iv length %d", ErrDecryptionFailure, len(attr.IV))
	}
	if len(attr.Ciphertext) < c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailure)
	}
	plaintext, err := c.aead.Open(nil, attr.IV, attr.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return string(plaintext), nil
}

// DecryptOptional returns "" for a zero attribute.
func (c *FieldCipher) DecryptOptional(attr EncryptedAttribute) (string, error) {
	if attr.IsZero() {
		return "", nil
	}
	return c.Decrypt(attr)
}
