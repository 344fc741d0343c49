package twofactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessonmart/authcore/pkg/backupcode"
)

const (
	selectStateSQL = `SELECT totp_enabled, totp_secret_encrypted, setup_started_at, backup_codes, last_totp_step, updated_at
		FROM user_two_factor WHERE user_id = $1`

	ensureStateSQL = `INSERT INTO user_two_factor (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`

	updateStateSQL = `UPDATE user_two_factor
		SET totp_enabled = $2, totp_secret_encrypted = $3, setup_started_at = $4, backup_codes = $5,
			last_totp_step = $6, updated_at = $7
		WHERE user_id = $1`

	selectPasswordHashSQL = `SELECT password_hash FROM users WHERE id = $1`
)

// PostgresStorage keeps records in the user_two_factor table. Update holds a
// row lock for the duration of fn, which serializes writers per user across
// processes.
type PostgresStorage struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewPostgresStorage creates a store on pool.
func NewPostgresStorage(pool *pgxpool.Pool, opts ...StorageOption) *PostgresStorage {
	cfg := newStorageConfig(opts)
	return &PostgresStorage{pool: pool, clock: cfg.clock}
}

// Get implements Storage.
func (p *PostgresStorage) Get(ctx context.Context, userID uuid.UUID) (*State, error) {
	st, err := scanState(p.pool.QueryRow(ctx, selectStateSQL, userID), userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return NewState(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load two-factor state: %w", err)
	}
	return st, nil
}

// Update implements Storage.
func (p *PostgresStorage) Update(ctx context.Context, userID uuid.UUID, fn func(*State) error) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin two-factor update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, ensureStateSQL, userID); err != nil {
		return fmt.Errorf("ensure two-factor state: %w", err)
	}

	st, err := scanState(tx.QueryRow(ctx, selectStateSQL+" FOR UPDATE", userID), userID)
	if err != nil {
		return fmt.Errorf("lock two-factor state: %w", err)
	}

	if err = fn(st); err != nil {
		return err
	}

	codes := st.BackupCodes
	if codes == nil {
		codes = []backupcode.Entry{}
	}
	st.UpdatedAt = p.clock.Now().UTC()

	if _, err = tx.Exec(ctx, updateStateSQL,
		userID, st.TOTPEnabled, st.TOTPSecretEncrypted, st.SetupStartedAt, codes, st.LastTOTPStep, st.UpdatedAt,
	); err != nil {
		return fmt.Errorf("write two-factor state: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit two-factor update: %w", err)
	}
	return nil
}

// PasswordHash implements PasswordHashLookup over the users table.
func (p *PostgresStorage) PasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	var hash []byte
	err := p.pool.QueryRow(ctx, selectPasswordHashSQL, userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load password hash: %w", err)
	}
	return hash, nil
}

func scanState(row pgx.Row, userID uuid.UUID) (*State, error) {
	st := NewState(userID)
	if err := row.Scan(
		&st.TOTPEnabled,
		&st.TOTPSecretEncrypted,
		&st.SetupStartedAt,
		&st.BackupCodes,
		&st.LastTOTPStep,
		&st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(st.BackupCodes) == 0 {
		st.BackupCodes = nil
	}
	return st, nil
}
