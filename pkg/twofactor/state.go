package twofactor

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/lessonmart/authcore/pkg/backupcode"
)

// Status is the lifecycle position derived from a State.
type Status uint8

const (
	StatusDisabled Status = iota
	StatusPendingSetup
	StatusEnabled
)

func (s Status) String() string {
	switch s {
	case StatusPendingSetup:
		return "pending_setup"
	case StatusEnabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// State is the persisted two-factor record of one user. A user without a
// record is in the zero State, which is Disabled.
type State struct {
	UserID              uuid.UUID
	TOTPEnabled         bool
	TOTPSecretEncrypted []byte
	SetupStartedAt      *time.Time
	BackupCodes         []backupcode.Entry
	// LastTOTPStep is the newest TOTP step accepted for this secret, zero when
	// none. It is only consulted with replay protection on.
	LastTOTPStep int64
	UpdatedAt    time.Time
}

// NewState returns the initial record for userID.
func NewState(userID uuid.UUID) *State {
	return &State{UserID: userID}
}

// Status derives the lifecycle position. A stored secret without the enabled
// flag is a pending setup.
func (s *State) Status() Status {
	switch {
	case s.TOTPEnabled:
		return StatusEnabled
	case len(s.TOTPSecretEncrypted) > 0:
		return StatusPendingSetup
	default:
		return StatusDisabled
	}
}

// Validate checks the record invariants.
func (s *State) Validate() error {
	if s.TOTPEnabled && len(s.TOTPSecretEncrypted) == 0 {
		return ErrCorruptState
	}
	if !s.TOTPEnabled && len(s.BackupCodes) > 0 {
		return ErrCorruptState
	}
	if s.LastTOTPStep < 0 {
		return ErrCorruptState
	}
	return nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.TOTPSecretEncrypted = slices.Clone(s.TOTPSecretEncrypted)
	if s.SetupStartedAt != nil {
		t := *s.SetupStartedAt
		c.SetupStartedAt = &t
	}
	if s.BackupCodes != nil {
		c.BackupCodes = make([]backupcode.Entry, len(s.BackupCodes))
		for i, e := range s.BackupCodes {
			c.BackupCodes[i] = backupcode.Entry{Hash: e.Hash}
			if e.UsedAt != nil {
				t := *e.UsedAt
				c.BackupCodes[i].UsedAt = &t
			}
		}
	}
	return &c
}

func (s *State) clear() {
	s.TOTPEnabled = false
	s.TOTPSecretEncrypted = nil
	s.SetupStartedAt = nil
	s.BackupCodes = nil
	s.LastTOTPStep = 0
}
