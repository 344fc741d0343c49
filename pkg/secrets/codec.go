package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// Codec seals and opens secrets with a purpose-bound AES-256-GCM key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the purpose key from master and prepares the cipher.
// master is not retained; callers may clear it after this returns.
func NewCodec(master []byte, purpose string) (*Codec, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKeyLength
	}

	key, err := deriveKey(master, purpose)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext. The result is nonce || ciphertext || tag.
func (c *Codec) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Decrypt opens a blob produced by Encrypt with the same associated data.
// Any tampering, truncation or associated-data mismatch yields ErrDecryptionFailed.
func (c *Codec) Decrypt(blob, associatedData []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(blob) < nonceSize+c.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
