// Package config loads process configuration from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/lessonmart/authcore/pkg/environment"
	"github.com/lessonmart/authcore/pkg/httpserver"
	"github.com/lessonmart/authcore/pkg/pg"
	"github.com/lessonmart/authcore/pkg/redis"
	"github.com/lessonmart/authcore/pkg/secrets"
)

var (
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Backend names accepted by TWOFACTOR_STORAGE and RATELIMIT_STORE.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the full process configuration.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"authcore"`

	HTTP     httpserver.Config
	Postgres pg.Config
	Redis    redis.Config

	TwoFactor TwoFactor
	RateLimit RateLimit
	Identity  Identity

	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// TwoFactor configures the lifecycle service.
type TwoFactor struct {
	Storage         string        `env:"TWOFACTOR_STORAGE" envDefault:"postgres"`
	Issuer          string        `env:"TOTP_ISSUER" envDefault:"Lessonmart"`
	MasterKey       string        `env:"TWOFACTOR_MASTER_KEY,unset"` // base64, see cmd/keygen
	BackupCodeCount int           `env:"TWOFACTOR_BACKUP_CODE_COUNT" envDefault:"10"`
	PendingSetupTTL time.Duration `env:"TWOFACTOR_PENDING_SETUP_TTL" envDefault:"0s"` // 0 disables expiry
	QRCodeSize      int           `env:"TWOFACTOR_QR_SIZE" envDefault:"256"`

	// RejectTOTPReplay refuses a TOTP code whose step was already accepted.
	RejectTOTPReplay bool `env:"TWOFACTOR_REJECT_TOTP_REPLAY" envDefault:"false"`

	// DevPasswordHash is the bcrypt hash every user shares with memory
	// storage, which has no users table.
	DevPasswordHash string `env:"TWOFACTOR_DEV_PASSWORD_HASH"`
}

// Identity selects how the API learns who is calling.
type Identity struct {
	Mode string `env:"IDENTITY_MODE" envDefault:"header"`

	// header mode: set by an authenticating gateway
	UserHeader             string `env:"IDENTITY_USER_HEADER" envDefault:"X-Authenticated-User"`
	AccountHeader          string `env:"IDENTITY_ACCOUNT_HEADER" envDefault:"X-Authenticated-Email"`
	ChallengeUserHeader    string `env:"IDENTITY_CHALLENGE_USER_HEADER" envDefault:"X-Pending-User"`
	ChallengeAccountHeader string `env:"IDENTITY_CHALLENGE_ACCOUNT_HEADER" envDefault:"X-Pending-Email"`

	// token mode: HS256 bearer tokens signed with this key
	TokenKey string `env:"IDENTITY_TOKEN_KEY,unset"`
}

// Identity modes accepted by IDENTITY_MODE.
const (
	IdentityHeader = "header"
	IdentityToken  = "token"
)

// RateLimit configures the limiter store and policy overrides.
type RateLimit struct {
	Store           string        `env:"RATELIMIT_STORE" envDefault:"memory"`
	OverridesFile   string        `env:"RATELIMIT_OVERRIDES_FILE"`
	CleanupInterval time.Duration `env:"RATELIMIT_CLEANUP_INTERVAL" envDefault:"1m"`
	KeyPrefix       string        `env:"RATELIMIT_KEY_PREFIX" envDefault:"ratelimit:"`
}

// Environment returns the parsed APP_ENV.
func (c Config) Environment() environment.Environment {
	return environment.Parse(c.Env)
}

// Load reads the given .env files (".env" when none are named) into the
// process environment, then parses Config. Missing files are ignored;
// variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Join(ErrParsingConfig, fmt.Errorf("load %s: %w", f, err))
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c Config) Validate() error {
	var errs []error

	switch c.TwoFactor.Storage {
	case BackendPostgres:
		if c.Postgres.ConnectionString == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres storage"))
		}
	case BackendMemory:
		if c.Environment().IsProduction() {
			errs = append(errs, errors.New("memory two-factor storage is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TWOFACTOR_STORAGE %q", c.TwoFactor.Storage))
	}

	switch c.RateLimit.Store {
	case BackendRedis:
		if c.Redis.ConnectionURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis rate limit store"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown RATELIMIT_STORE %q", c.RateLimit.Store))
	}

	switch c.Identity.Mode {
	case IdentityHeader:
		if c.Identity.UserHeader == "" || c.Identity.ChallengeUserHeader == "" {
			errs = append(errs, errors.New("identity user headers must not be empty"))
		}
	case IdentityToken:
		if len(c.Identity.TokenKey) < 32 {
			errs = append(errs, errors.New("IDENTITY_TOKEN_KEY must be at least 32 bytes"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IDENTITY_MODE %q", c.Identity.Mode))
	}

	if _, err := secrets.ParseKey(c.TwoFactor.MasterKey); err != nil {
		errs = append(errs, fmt.Errorf("TWOFACTOR_MASTER_KEY: %w", err))
	}
	if c.TwoFactor.Issuer == "" {
		errs = append(errs, errors.New("TOTP_ISSUER must not be empty"))
	}
	if c.TwoFactor.BackupCodeCount <= 0 {
		errs = append(errs, errors.New("TWOFACTOR_BACKUP_CODE_COUNT must be positive"))
	}
	if c.TwoFactor.PendingSetupTTL < 0 {
		errs = append(errs, errors.New("TWOFACTOR_PENDING_SETUP_TTL must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}
