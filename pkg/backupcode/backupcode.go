package backupcode

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"time"
)

const (
	// DefaultCount is how many codes a batch holds.
	DefaultCount = 10
	// Length is the number of symbols in a code, separators excluded.
	Length = 10
	// Alphabet omits 0/O and 1/I to keep codes easy to retype.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	groupSize = 5
	separator = '-'
)

// Entry is the persisted form of one code.
type Entry struct {
	Hash   string     `json:"hash"`
	UsedAt *time.Time `json:"used_at,omitempty"`
}

// Used reports whether the entry has been consumed.
func (e Entry) Used() bool {
	return e.UsedAt != nil
}

// Batch is a freshly generated set. Codes must be shown to the user once and
// then dropped; Hashes are what gets stored.
type Batch struct {
	Codes  []string
	Hashes []string
}

// Entries converts the batch hashes into unused entries.
func (b Batch) Entries() []Entry {
	return Entries(b.Hashes)
}

// Entries wraps stored hashes as unused entries.
func Entries(hashes []string) []Entry {
	entries := make([]Entry, len(hashes))
	for i, h := range hashes {
		entries[i] = Entry{Hash: h}
	}
	return entries
}

// GenerateBatch creates count unique codes and their hashes.
func GenerateBatch(count int) (Batch, error) {
	if count < 1 {
		return Batch{}, ErrInvalidCount
	}

	batch := Batch{
		Codes:  make([]string, 0, count),
		Hashes: make([]string, 0, count),
	}
	seen := make(map[string]struct{}, count)

	for len(batch.Codes) < count {
		canonical, err := randomCode()
		if err != nil {
			return Batch{}, err
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}

		batch.Codes = append(batch.Codes, format(canonical))
		batch.Hashes = append(batch.Hashes, Hash(canonical))
	}

	return batch, nil
}

// Normalize turns user input into the canonical form: separators and spaces
// removed, upper case. It reports false when the result is not a well-formed code.
func Normalize(code string) (string, bool) {
	var b strings.Builder
	b.Grow(Length)
	for _, r := range code {
		switch {
		case r == separator || r == ' ':
			continue
		case r >= 'a' && r <= 'z':
			r -= 'a' - 'A'
		}
		if r > 127 || strings.IndexByte(Alphabet, byte(r)) < 0 {
			return "", false
		}
		if b.Len() == Length {
			return "", false
		}
		b.WriteByte(byte(r))
	}
	if b.Len() != Length {
		return "", false
	}
	return b.String(), true
}

// Hash returns the storage hash of a canonical code.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Match finds the unused entry matching code. It returns the entry index and
// true on success. Malformed input returns before any hashing.
func Match(code string, entries []Entry) (int, bool) {
	canonical, ok := Normalize(code)
	if !ok {
		return -1, false
	}

	candidate := []byte(Hash(canonical))
	found := -1
	for i, e := range entries {
		eq := subtle.ConstantTimeCompare(candidate, []byte(e.Hash))
		if eq == 1 && !e.Used() && found < 0 {
			found = i
		}
	}
	return found, found >= 0
}

// MarkUsed records that entries[i] was consumed at now. It refuses to touch an
// entry twice.
func MarkUsed(entries []Entry, i int, now time.Time) error {
	if i < 0 || i >= len(entries) {
		return ErrInvalidEntryIndex
	}
	if entries[i].Used() {
		return ErrBackupCodeConsumed
	}
	t := now.UTC()
	entries[i].UsedAt = &t
	return nil
}

// Remaining counts unused entries.
func Remaining(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if !e.Used() {
			n++
		}
	}
	return n
}

func randomCode() (string, error) {
	limit := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", errors.Join(ErrFailedToGenerate, err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}

func format(canonical string) string {
	return canonical[:groupSize] + string(separator) + canonical[groupSize:]
}
