package backupcode

import "errors"

var (
	ErrInvalidCount       = errors.New("invalid backup code count, must be greater than 0")
	ErrFailedToGenerate   = errors.New("failed to generate backup code")
	ErrInvalidEntryIndex  = errors.New("backup code index out of range")
	ErrBackupCodeConsumed = errors.New("backup code already used")
)
