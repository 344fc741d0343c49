package secrets

import "errors"

var (
	ErrInvalidKeyLength    = errors.New("invalid master key: must be 32 bytes")
	ErrKeyNotSet           = errors.New("master key not set")
	ErrFailedToParseKey    = errors.New("failed to parse master key")
	ErrFailedToGenerateKey = errors.New("failed to generate master key")
	ErrKeyDerivationFailed = errors.New("key derivation failed")
	ErrEncryptionFailed    = errors.New("encryption failed")
	ErrDecryptionFailed    = errors.New("decryption failed")
	ErrInvalidCiphertext   = errors.New("invalid ciphertext format")
)
