package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM IV length prefixed to every blob.
	NonceSize = 12
	// TagSize is the GCM authentication tag length appended by Seal.
	TagSize = 16
	// MinBlobSize is the length of a blob that encrypts the empty plaintext.
	MinBlobSize = NonceSize + TagSize
)

var (
	ErrInvalidKey         = errors.New("vault: key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("vault: ciphertext too short")
	ErrDecrypt            = errors.New("vault: decryption failed")
)

// Cipher is an AES-256-GCM sealer. Blobs are laid out as nonce || ciphertext || tag.
// A Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// DecodeKey parses a standard base64 key and checks its length.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, NonceSize, MinBlobSize+len(plaintext))
	if _, err := io.ReadFull(c.rand, out); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}

	return c.aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Any tampering yields ErrDecrypt
// and no plaintext.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < MinBlobSize {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := c.aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// EncryptString seals s and returns the blob as standard base64, the form
// stored in text columns.
func (c *Cipher) EncryptString(s string) (string, error) {
	blob, err := c.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString reverses EncryptString.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
