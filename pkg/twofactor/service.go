package twofactor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/lessonmart/authcore/pkg/backupcode"
	"github.com/lessonmart/authcore/pkg/logger"
	"github.com/lessonmart/authcore/pkg/ratelimit"
	"github.com/lessonmart/authcore/pkg/secrets"
	"github.com/lessonmart/authcore/pkg/totp"
)

// Caller identifies who is acting. UserID and IP are required; Account is the
// label shown in authenticator apps and falls back to the user id.
type Caller struct {
	UserID  uuid.UUID
	Account string
	IP      string
}

func (c Caller) validate() error {
	if c.UserID == uuid.Nil || c.IP == "" {
		return fail(ReasonInvalidInput, ErrMissingCaller)
	}
	return nil
}

func (c Caller) rateKey() string {
	return ratelimit.UserIPKey(c.UserID.String(), c.IP)
}

func (c Caller) account() string {
	if c.Account != "" {
		return c.Account
	}
	return c.UserID.String()
}

// Enrollment is returned once by Setup for display to the user.
type Enrollment struct {
	Secret string
	URI    string
}

// BackupCodes holds plaintext codes. They are never retrievable again.
type BackupCodes struct {
	Codes []string
}

// Method is the second factor accepted at sign-in.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// SignIn is the outcome of an accepted second factor.
type SignIn struct {
	Method               Method
	RemainingBackupCodes int
}

// Summary describes a user's two-factor status without exposing secrets.
type Summary struct {
	Status               Status
	RemainingBackupCodes int
	PendingSince         *time.Time
}

// Service runs the two-factor lifecycle.
type Service struct {
	storage Storage
	creds   Credentials
	limiter *ratelimit.Limiter
	codec   *secrets.Codec
	engine  *totp.Engine

	clock           clock.Clock
	logger          *slog.Logger
	backupCodeCount int
	pendingSetupTTL time.Duration
	rejectReplay    bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for timestamps and setup expiry. The TOTP
// engine keeps its own clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBackupCodeCount sets how many backup codes a batch holds.
func WithBackupCodeCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.backupCodeCount = n
		}
	}
}

// WithPendingSetupTTL bounds how long a started setup can be verified.
// Zero, the default, keeps pending setups valid until replaced.
func WithPendingSetupTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.pendingSetupTTL = ttl
		}
	}
}

// WithReplayProtection makes every accepted TOTP code single use: a code is
// refused unless its step is newer than the last accepted one. TOTP sign-in
// then writes to storage on success.
func WithReplayProtection() Option {
	return func(s *Service) {
		s.rejectReplay = true
	}
}

// NewService wires the lifecycle. All collaborators are required.
func NewService(
	storage Storage,
	creds Credentials,
	limiter *ratelimit.Limiter,
	codec *secrets.Codec,
	engine *totp.Engine,
	opts ...Option,
) *Service {
	switch {
	case storage == nil:
		panic("twofactor.NewService: storage is required")
	case creds == nil:
		panic("twofactor.NewService: credentials are required")
	case limiter == nil:
		panic("twofactor.NewService: limiter is required")
	case codec == nil:
		panic("twofactor.NewService: codec is required")
	case engine == nil:
		panic("twofactor.NewService: engine is required")
	}

	s := &Service{
		storage:         storage,
		creds:           creds,
		limiter:         limiter,
		codec:           codec,
		engine:          engine,
		clock:           clock.New(),
		logger:          logger.Discard(),
		backupCodeCount: backupcode.DefaultCount,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Setup starts enrollment: Disabled or PendingSetup to PendingSetup. A new
// secret replaces any pending one.
func (s *Service) Setup(ctx context.Context, caller Caller) (*Enrollment, error) {
	if err := s.guard(ctx, caller, ratelimit.PolicyTwoFactorSetup); err != nil {
		return nil, err
	}

	has, err := s.creds.HasPassword(ctx, caller.UserID)
	if err != nil {
		return nil, storageError(err)
	}
	if !has {
		return nil, precondition(ErrPasswordNotSet)
	}

	var enrollment *Enrollment
	err = s.update(ctx, caller.UserID, func(st *State) error {
		if _, err := transition(st.Status(), eventSetup); err != nil {
			return precondition(err)
		}

		secret, err := totp.GenerateSecret()
		if err != nil {
			return storageError(err)
		}
		defer secret.Zero()

		blob, err := s.codec.Encrypt(secret.Bytes(), caller.UserID[:])
		if err != nil {
			return storageError(err)
		}
		uri, err := s.engine.ProvisioningURI(caller.account(), secret)
		if err != nil {
			return fail(ReasonInvalidInput, err)
		}

		now := s.clock.Now().UTC()
		st.TOTPEnabled = false
		st.TOTPSecretEncrypted = blob
		st.SetupStartedAt = &now
		st.BackupCodes = nil
		st.LastTOTPStep = 0

		enrollment = &Enrollment{Secret: secret.Base32(), URI: uri}
		return nil
	})
	if err != nil {
		return nil, s.failed(ctx, caller, "setup", err)
	}

	s.logger.InfoContext(ctx, "two-factor setup started",
		logger.UserID(caller.UserID), logger.Event("2fa.setup"))
	return enrollment, nil
}

// Verify confirms enrollment with a code from the pending secret and enables
// two-factor authentication. The returned backup codes are shown once.
func (s *Service) Verify(ctx context.Context, caller Caller, code string) (*BackupCodes, error) {
	if err := s.guard(ctx, caller, ratelimit.PolicyTwoFactorVerify); err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	if !totp.ValidCodeFormat(code) {
		return nil, fail(ReasonInvalidInput, ErrInvalidInput)
	}

	var codes *BackupCodes
	err := s.update(ctx, caller.UserID, func(st *State) error {
		if _, err := transition(st.Status(), eventVerify); err != nil {
			return precondition(err)
		}
		if s.setupExpired(st) {
			return precondition(ErrSetupExpired)
		}

		step, err := s.checkTOTP(st, code)
		if err != nil {
			return err
		}

		batch, err := backupcode.GenerateBatch(s.backupCodeCount)
		if err != nil {
			return storageError(err)
		}

		st.LastTOTPStep = step
		st.TOTPEnabled = true
		st.SetupStartedAt = nil
		st.BackupCodes = batch.Entries()

		codes = &BackupCodes{Codes: batch.Codes}
		return nil
	})
	if err != nil {
		return nil, s.failed(ctx, caller, "verify", err)
	}

	s.logger.InfoContext(ctx, "two-factor enabled",
		logger.UserID(caller.UserID), logger.Event("2fa.enabled"))
	return codes, nil
}

// Disable turns two-factor authentication off after re-checking the password.
func (s *Service) Disable(ctx context.Context, caller Caller, password string) error {
	if err := s.guard(ctx, caller, ratelimit.PolicyTwoFactorDisable); err != nil {
		return err
	}
	if password == "" {
		return fail(ReasonInvalidInput, ErrInvalidInput)
	}
	if err := s.confirm(ctx, caller.UserID, eventDisable, password); err != nil {
		return s.failed(ctx, caller, "disable", err)
	}

	err := s.update(ctx, caller.UserID, func(st *State) error {
		if _, err := transition(st.Status(), eventDisable); err != nil {
			return precondition(err)
		}

		st.clear()
		return nil
	})
	if err != nil {
		return s.failed(ctx, caller, "disable", err)
	}

	s.logger.InfoContext(ctx, "two-factor disabled",
		logger.UserID(caller.UserID), logger.Event("2fa.disabled"))
	return nil
}

// RegenerateBackupCodes replaces every backup code, used or not, after
// re-checking the password.
func (s *Service) RegenerateBackupCodes(ctx context.Context, caller Caller, password string) (*BackupCodes, error) {
	if err := s.guard(ctx, caller, ratelimit.PolicyTwoFactorRegenerate); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fail(ReasonInvalidInput, ErrInvalidInput)
	}
	if err := s.confirm(ctx, caller.UserID, eventRegenerate, password); err != nil {
		return nil, s.failed(ctx, caller, "regenerate", err)
	}

	var codes *BackupCodes
	err := s.update(ctx, caller.UserID, func(st *State) error {
		if _, err := transition(st.Status(), eventRegenerate); err != nil {
			return precondition(err)
		}

		batch, err := backupcode.GenerateBatch(s.backupCodeCount)
		if err != nil {
			return storageError(err)
		}
		st.BackupCodes = batch.Entries()

		codes = &BackupCodes{Codes: batch.Codes}
		return nil
	})
	if err != nil {
		return nil, s.failed(ctx, caller, "regenerate", err)
	}

	s.logger.InfoContext(ctx, "backup codes regenerated",
		logger.UserID(caller.UserID), logger.Event("2fa.backup_codes_regenerated"))
	return codes, nil
}

// ValidateSignIn checks the second factor of a user whose password was
// already verified. Six digits take the TOTP path; anything shaped like a
// backup code takes the backup path and consumes the code on success.
func (s *Service) ValidateSignIn(ctx context.Context, caller Caller, code string) (*SignIn, error) {
	if err := s.guard(ctx, caller, ratelimit.PolicyTwoFactorChallenge); err != nil {
		return nil, err
	}
	if err := s.allow(ctx, caller, ratelimit.PolicyTwoFactorChallengeUser, caller.UserID.String()); err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	var (
		result *SignIn
		err    error
	)
	switch {
	case totp.ValidCodeFormat(code):
		result, err = s.signInTOTP(ctx, caller, code)
	default:
		if _, ok := backupcode.Normalize(code); !ok {
			return nil, fail(ReasonInvalidInput, ErrInvalidInput)
		}
		result, err = s.signInBackupCode(ctx, caller, code)
	}
	if err != nil {
		return nil, s.failed(ctx, caller, "sign_in", err)
	}

	s.logger.InfoContext(ctx, "second factor accepted",
		logger.UserID(caller.UserID),
		logger.Event("2fa.sign_in"),
		slog.String("method", string(result.Method)))
	return result, nil
}

// Status reports the user's lifecycle position.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, fail(ReasonInvalidInput, ErrMissingCaller)
	}

	st, err := s.storage.Get(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}

	summary := &Summary{
		Status:               st.Status(),
		RemainingBackupCodes: backupcode.Remaining(st.BackupCodes),
	}
	if summary.Status == StatusPendingSetup && st.SetupStartedAt != nil {
		t := *st.SetupStartedAt
		summary.PendingSince = &t
	}
	return summary, nil
}

func (s *Service) signInTOTP(ctx context.Context, caller Caller, code string) (*SignIn, error) {
	if s.rejectReplay {
		var result *SignIn
		err := s.update(ctx, caller.UserID, func(st *State) error {
			if st.Status() != StatusEnabled {
				return precondition(ErrNotEnabled)
			}
			step, err := s.checkTOTP(st, code)
			if err != nil {
				return err
			}
			st.LastTOTPStep = step
			result = &SignIn{
				Method:               MethodTOTP,
				RemainingBackupCodes: backupcode.Remaining(st.BackupCodes),
			}
			return nil
		})
		return result, err
	}

	st, err := s.storage.Get(ctx, caller.UserID)
	if err != nil {
		return nil, storageError(err)
	}
	if st.Status() != StatusEnabled {
		return nil, precondition(ErrNotEnabled)
	}
	if _, err := s.checkTOTP(st, code); err != nil {
		return nil, err
	}

	return &SignIn{
		Method:               MethodTOTP,
		RemainingBackupCodes: backupcode.Remaining(st.BackupCodes),
	}, nil
}

func (s *Service) signInBackupCode(ctx context.Context, caller Caller, code string) (*SignIn, error) {
	var result *SignIn
	err := s.update(ctx, caller.UserID, func(st *State) error {
		if st.Status() != StatusEnabled {
			return precondition(ErrNotEnabled)
		}

		idx, ok := backupcode.Match(code, st.BackupCodes)
		if !ok {
			return fail(ReasonInvalidCode, ErrInvalidCode)
		}
		if err := backupcode.MarkUsed(st.BackupCodes, idx, s.clock.Now()); err != nil {
			return fail(ReasonInvalidCode, errors.Join(ErrInvalidCode, err))
		}

		result = &SignIn{
			Method:               MethodBackupCode,
			RemainingBackupCodes: backupcode.Remaining(st.BackupCodes),
		}
		return nil
	})
	return result, err
}

// guard validates the caller and applies the operation's userID:IP policy.
func (s *Service) guard(ctx context.Context, caller Caller, policy ratelimit.PolicyID) error {
	if err := caller.validate(); err != nil {
		return err
	}
	return s.allow(ctx, caller, policy, caller.rateKey())
}

func (s *Service) allow(ctx context.Context, caller Caller, policy ratelimit.PolicyID, key string) error {
	res, err := s.limiter.Check(ctx, policy, key)
	if err != nil {
		if res.Allowed {
			return nil
		}
		s.logger.ErrorContext(ctx, "rate limit check failed",
			logger.UserID(caller.UserID),
			logger.Policy(policy.String()),
			logger.Error(err))
		if errors.Is(err, ratelimit.ErrKeyRequired) {
			return fail(ReasonInvalidInput, err)
		}
		return fail(ReasonStorageError, err)
	}
	if !res.Allowed {
		s.logger.WarnContext(ctx, "two-factor attempt rate limited",
			logger.UserID(caller.UserID),
			logger.ClientIP(caller.IP),
			logger.Policy(policy.String()),
			logger.RetryAfter(res.RetryAfter))
		return rateLimited(res)
	}
	return nil
}

// update runs fn through storage and enforces the record invariants before
// anything is written.
func (s *Service) update(ctx context.Context, userID uuid.UUID, fn func(*State) error) error {
	err := s.storage.Update(ctx, userID, func(st *State) error {
		if err := fn(st); err != nil {
			return err
		}
		if err := st.Validate(); err != nil {
			return storageError(err)
		}
		return nil
	})
	if err != nil {
		return storageError(err)
	}
	return nil
}

// checkTOTP returns the step code matched.
func (s *Service) checkTOTP(st *State, code string) (int64, error) {
	raw, err := s.codec.Decrypt(st.TOTPSecretEncrypted, st.UserID[:])
	if err != nil {
		return 0, storageError(errors.Join(ErrSecretUnusable, err))
	}
	secret, err := totp.NewSecret(raw)
	clear(raw)
	if err != nil {
		return 0, storageError(errors.Join(ErrSecretUnusable, err))
	}
	defer secret.Zero()

	step, ok := s.engine.Match(code, secret)
	if !ok {
		return 0, fail(ReasonInvalidCode, ErrInvalidCode)
	}
	if s.rejectReplay && step <= st.LastTOTPStep {
		return 0, fail(ReasonInvalidCode, errors.Join(ErrInvalidCode, ErrCodeReused))
	}
	return step, nil
}

// confirm checks the transition on a snapshot, then the password, before any
// storage transaction is opened. Credentials may share the storage backend,
// and a lookup made while Update holds its connection would need a second
// one. Callers re-check the transition inside Update.
func (s *Service) confirm(ctx context.Context, userID uuid.UUID, ev event, password string) error {
	st, err := s.storage.Get(ctx, userID)
	if err != nil {
		return storageError(err)
	}
	if _, err := transition(st.Status(), ev); err != nil {
		return precondition(err)
	}
	return s.checkPassword(ctx, userID, password)
}

func (s *Service) checkPassword(ctx context.Context, userID uuid.UUID, password string) error {
	err := s.creds.VerifyPassword(ctx, userID, password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrWrongPassword):
		return fail(ReasonWrongPassword, ErrWrongPassword)
	case errors.Is(err, ErrPasswordNotSet):
		return precondition(ErrPasswordNotSet)
	default:
		return storageError(err)
	}
}

func (s *Service) setupExpired(st *State) bool {
	if s.pendingSetupTTL <= 0 || st.SetupStartedAt == nil {
		return false
	}
	return s.clock.Now().Sub(*st.SetupStartedAt) >= s.pendingSetupTTL
}

func (s *Service) failed(ctx context.Context, caller Caller, op string, err error) error {
	reason := ReasonOf(err)
	level := slog.LevelWarn
	if reason == ReasonStorageError {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "two-factor operation failed",
		logger.UserID(caller.UserID),
		logger.Event("2fa."+op),
		logger.Reason(string(reason)),
		logger.Error(err))
	return err
}
