package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lessonmart/authcore/pkg/environment"
	"github.com/lessonmart/authcore/pkg/logger"
)

// storeFailureRetry is advertised when a fail-closed policy cannot reach its store.
const storeFailureRetry = time.Second

// Limiter answers allow/deny for a policy and caller key.
type Limiter struct {
	store    Store
	registry *Registry
	clock    clock.Clock
	env      environment.Environment
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithEnvironment sets the environment that decides how unknown policies are
// treated. The default is production.
func WithEnvironment(env environment.Environment) Option {
	return func(l *Limiter) {
		l.env = env
	}
}

// WithLogger sets the logger for store failures and unknown policies.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithMetrics records every decision.
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithRegistry replaces the built-in policy table.
func WithRegistry(r *Registry) Option {
	return func(l *Limiter) {
		if r != nil {
			l.registry = r
		}
	}
}

// New creates a Limiter backed by store.
func New(store Store, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	l := &Limiter{
		store:    store,
		registry: NewRegistry(),
		clock:    clock.New(),
		env:      environment.Production,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Registry returns the policy table in use.
func (l *Limiter) Registry() *Registry {
	return l.registry
}

// Check counts one request for (id, callerKey) and reports whether it is
// admitted. The request is counted even when denied.
//
// A non-nil error is returned alongside a usable Result: ErrKeyRequired and
// ErrUnknownPolicy always deny, ErrStoreUnavailable follows the policy's
// FailMode.
func (l *Limiter) Check(ctx context.Context, id PolicyID, callerKey string) (Result, error) {
	policy, ok := l.registry.Lookup(id)
	if !ok {
		if l.env.IsDevelopment() {
			panic(fmt.Sprintf("ratelimit: unknown policy %s", id))
		}
		l.logger.ErrorContext(ctx, "unknown rate limit policy",
			logger.Policy(id.String()),
			logger.Component("ratelimit"),
		)
		l.metrics.observe(id.String(), outcomeUnknownPolicy)
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}

	if callerKey == "" {
		l.metrics.observe(policy.Name, outcomeDenied)
		return Result{Limit: policy.Limit}, ErrKeyRequired
	}

	now := l.clock.Now()
	count, start, err := l.store.Hit(ctx, bucketKey(policy, callerKey), policy.Window, now)
	if err != nil {
		return l.storeFailure(ctx, policy, err)
	}

	resetAt := start.Add(policy.Window)
	res := Result{
		Allowed:   count <= int64(policy.Limit),
		Limit:     policy.Limit,
		Remaining: max(policy.Limit-int(count), 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
		l.metrics.observe(policy.Name, outcomeDenied)
	} else {
		l.metrics.observe(policy.Name, outcomeAllowed)
	}

	return res, nil
}

// Reset clears the bucket for (id, callerKey).
func (l *Limiter) Reset(ctx context.Context, id PolicyID, callerKey string) error {
	policy, ok := l.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}
	if callerKey == "" {
		return ErrKeyRequired
	}
	if err := l.store.Reset(ctx, bucketKey(policy, callerKey)); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Limiter) storeFailure(ctx context.Context, policy Policy, cause error) (Result, error) {
	err := errors.Join(ErrStoreUnavailable, cause)
	now := l.clock.Now()

	l.logger.WarnContext(ctx, "rate limit store failed",
		logger.Policy(policy.Name),
		slog.String("fail_mode", policy.FailMode.String()),
		logger.Component("ratelimit"),
		logger.Error(cause),
	)

	if policy.FailMode == FailOpen {
		l.metrics.observe(policy.Name, outcomeFailOpen)
		return Result{
			Allowed:   true,
			Limit:     policy.Limit,
			Remaining: policy.Limit,
			ResetAt:   now.Add(policy.Window),
		}, err
	}

	l.metrics.observe(policy.Name, outcomeFailClosed)
	return Result{
		Limit:      policy.Limit,
		RetryAfter: storeFailureRetry,
		ResetAt:    now.Add(storeFailureRetry),
	}, err
}

func bucketKey(p Policy, callerKey string) string {
	return p.Name + ":" + callerKey
}
