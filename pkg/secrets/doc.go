// Package secrets encrypts small secrets (TOTP keys) at rest under a single
// server-side master key.
//
// A Codec derives a purpose-bound 32-byte key from the master key with
// HKDF-SHA-256 and seals data with AES-256-GCM. The random nonce is prepended
// to the ciphertext so a sealed blob is self-contained. Callers pass associated
// data (typically the owning user id) which is authenticated but not stored:
// a blob copied onto another user's record fails to open.
//
//	key, _ := secrets.ParseKey(os.Getenv("TOTP_ENCRYPTION_KEY"))
//	codec, _ := secrets.NewCodec(key, secrets.PurposeTOTP)
//	blob, _ := codec.Encrypt(rawSecret, userID[:])
//	raw, _ := codec.Decrypt(blob, userID[:])
//
// The Codec is stateless after construction and safe for concurrent use.
package secrets
