// Command authcore serves the two-factor API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lessonmart/authcore/internal/config"
	"github.com/lessonmart/authcore/internal/db/migrations"
	"github.com/lessonmart/authcore/internal/httpapi"
	"github.com/lessonmart/authcore/pkg/clientip"
	"github.com/lessonmart/authcore/pkg/httpserver"
	"github.com/lessonmart/authcore/pkg/logger"
	"github.com/lessonmart/authcore/pkg/pg"
	"github.com/lessonmart/authcore/pkg/ratelimit"
	"github.com/lessonmart/authcore/pkg/redis"
	"github.com/lessonmart/authcore/pkg/requestid"
	"github.com/lessonmart/authcore/pkg/secrets"
	"github.com/lessonmart/authcore/pkg/totp"
	"github.com/lessonmart/authcore/pkg/twofactor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authcore:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	env := cfg.Environment()

	log := logger.New(
		logger.WithEnvironment(env, cfg.ServiceName),
		logger.WithContextExtractors(logger.RequestIDExtractor(requestid.FromContext)),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var checks []httpserver.Check

	store, closeStore, err := rateLimitStore(ctx, cfg, &checks)
	if err != nil {
		return err
	}
	defer closeStore()

	registry, err := policyRegistry(cfg.RateLimit.OverridesFile)
	if err != nil {
		return err
	}
	limiter, err := ratelimit.New(store,
		ratelimit.WithEnvironment(env),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimit.NewMetrics(reg)),
		ratelimit.WithRegistry(registry),
	)
	if err != nil {
		return err
	}

	storage, creds, closeStorage, err := twoFactorStorage(ctx, cfg, log, &checks)
	if err != nil {
		return err
	}
	defer closeStorage()

	key, err := secrets.ParseKey(cfg.TwoFactor.MasterKey)
	if err != nil {
		return err
	}
	codec, err := secrets.NewCodec(key, secrets.PurposeTOTP)
	clear(key)
	if err != nil {
		return err
	}

	svcOpts := []twofactor.Option{
		twofactor.WithLogger(log),
		twofactor.WithBackupCodeCount(cfg.TwoFactor.BackupCodeCount),
		twofactor.WithPendingSetupTTL(cfg.TwoFactor.PendingSetupTTL),
	}
	if cfg.TwoFactor.RejectTOTPReplay {
		svcOpts = append(svcOpts, twofactor.WithReplayProtection())
	}
	svc := twofactor.NewService(storage, creds, limiter, codec, totp.NewEngine(cfg.TwoFactor.Issuer), svcOpts...)

	resolver, err := clientip.New(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	session, challenge, err := identities(cfg.Identity)
	if err != nil {
		return err
	}
	api := httpapi.New(svc, limiter, resolver, session,
		httpapi.WithChallengeIdentity(challenge),
		httpapi.WithLogger(log),
		httpapi.WithQRCodeSize(cfg.TwoFactor.QRCodeSize),
	)

	router := chi.NewRouter()
	router.Use(requestid.Middleware, middleware.Recoverer)
	router.Get("/livez", httpserver.HealthHandler(log))
	router.Get("/healthz", httpserver.HealthHandler(log, checks...))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	api.Routes(router)

	log.InfoContext(ctx, "authcore starting",
		slog.String("twofactor_storage", cfg.TwoFactor.Storage),
		slog.String("ratelimit_store", cfg.RateLimit.Store))

	return httpserver.New(cfg.HTTP, router, httpserver.WithLogger(log)).Run(ctx)
}

func rateLimitStore(ctx context.Context, cfg config.Config, checks *[]httpserver.Check) (ratelimit.Store, func(), error) {
	if cfg.RateLimit.Store == config.BackendRedis {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		store, err := ratelimit.NewRedisStore(client, ratelimit.WithKeyPrefix(cfg.RateLimit.KeyPrefix))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		*checks = append(*checks, httpserver.Check{Name: "redis", Ping: redis.Healthcheck(client)})
		return store, func() { _ = client.Close() }, nil
	}

	store := ratelimit.NewMemoryStore(ratelimit.WithCleanupInterval(cfg.RateLimit.CleanupInterval))
	return store, func() { _ = store.Close() }, nil
}

func identities(cfg config.Identity) (session, challenge httpapi.IdentityFunc, err error) {
	if cfg.Mode == config.IdentityToken {
		key := []byte(cfg.TokenKey)
		if session, err = httpapi.TokenIdentity(key, httpapi.AudienceSession, nil); err != nil {
			return nil, nil, err
		}
		if challenge, err = httpapi.TokenIdentity(key, httpapi.AudienceChallenge, nil); err != nil {
			return nil, nil, err
		}
		return session, challenge, nil
	}
	return httpapi.HeaderIdentity(cfg.UserHeader, cfg.AccountHeader),
		httpapi.HeaderIdentity(cfg.ChallengeUserHeader, cfg.ChallengeAccountHeader), nil
}

func policyRegistry(path string) (*ratelimit.Registry, error) {
	if path == "" {
		return ratelimit.NewRegistry(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rate limit overrides: %w", err)
	}
	defer f.Close()
	return ratelimit.LoadOverrides(f)
}

func twoFactorStorage(ctx context.Context, cfg config.Config, log *slog.Logger, checks *[]httpserver.Check) (twofactor.Storage, twofactor.Credentials, func(), error) {
	if cfg.TwoFactor.Storage == config.BackendMemory {
		log.WarnContext(ctx, "two-factor state is kept in memory and lost on restart")
		creds := twofactor.NewBcryptCredentials(sharedPassword(cfg.TwoFactor.DevPasswordHash))
		return twofactor.NewMemoryStorage(), creds, func() {}, nil
	}

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.Migrate(ctx, pool, migrations.FS, cfg.Postgres, log); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	*checks = append(*checks, httpserver.Check{Name: "postgres", Ping: pg.Healthcheck(pool)})

	storage := twofactor.NewPostgresStorage(pool)
	return storage, twofactor.NewBcryptCredentials(storage), pool.Close, nil
}

// sharedPassword gives every user the same bcrypt hash; an empty hash means
// nobody has a password.
type sharedPassword string

func (p sharedPassword) PasswordHash(context.Context, uuid.UUID) ([]byte, error) {
	if p == "" {
		return nil, nil
	}
	return []byte(p), nil
}
