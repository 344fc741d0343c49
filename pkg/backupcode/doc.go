// Package backupcode issues and checks single-use recovery codes for accounts
// protected by a second factor.
//
// GenerateBatch returns the plaintext codes exactly once together with their
// hashes; only the hashes are meant to be stored. Codes are 10 symbols from a
// 32-symbol alphabet without look-alike characters (50 bits each) and are shown
// as XXXXX-XXXXX.
//
// Hashes are hex SHA-256 of the canonical code. A password-grade KDF would add
// nothing against offline guessing of 50-bit random codes that a fast hash does
// not already give, and online guessing is bounded by rate limiting.
//
// Match checks the format first, hashes once, then compares against every
// stored entry without stopping at the first hit, so the cost of a call does not
// depend on which entry matched. Marking an entry used is the caller's job and
// must happen atomically with the Match that found it.
package backupcode
