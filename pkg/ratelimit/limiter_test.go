package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonmart/authcore/pkg/environment"
	"github.com/lessonmart/authcore/pkg/ratelimit"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newMockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(epoch)
	return mock
}

func newLimiter(t *testing.T, store ratelimit.Store, opts ...ratelimit.Option) *ratelimit.Limiter {
	t.Helper()
	limiter, err := ratelimit.New(store, opts...)
	require.NoError(t, err)
	return limiter
}

func newMemoryStore(t *testing.T, opts ...ratelimit.MemoryStoreOption) *ratelimit.MemoryStore {
	t.Helper()
	store := ratelimit.NewMemoryStore(opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type failingStore struct{}

var errBackendDown = errors.New("backend down")

func (failingStore) Hit(context.Context, string, time.Duration, time.Time) (int64, time.Time, error) {
	return 0, time.Time{}, errBackendDown
}

func (failingStore) Reset(context.Context, string) error {
	return errBackendDown
}

func TestNew_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := ratelimit.New(nil)
	assert.ErrorIs(t, err, ratelimit.ErrStoreRequired)
}

func TestLimiter_FixedWindow(t *testing.T) {
	t.Parallel()

	mock := newMockClock()
	limiter := newLimiter(t, newMemoryStore(t), ratelimit.WithClock(mock))
	policy, ok := limiter.Registry().Lookup(ratelimit.PolicyTwoFactorVerify)
	require.True(t, ok)
	ctx := context.Background()

	for i := 1; i <= policy.Limit; i++ {
		res, err := limiter.Check(ctx, policy.ID, "user-1:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, policy.Limit, res.Limit)
		assert.Equal(t, policy.Limit-i, res.Remaining)
		assert.Equal(t, epoch.Add(policy.Window), res.ResetAt)
		assert.Zero(t, res.RetryAfterSeconds())
		mock.Add(time.Second)
	}

	res, err := limiter.Check(ctx, policy.ID, "user-1:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "limit+1 is denied")
	assert.Zero(t, res.Remaining)

	// The window is anchored at the first request, not at the clock boundary.
	mock.Set(epoch.Add(policy.Window - time.Millisecond))
	res, err = limiter.Check(ctx, policy.ID, "user-1:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1, res.RetryAfterSeconds())

	mock.Set(epoch.Add(policy.Window))
	res, err = limiter.Check(ctx, policy.ID, "user-1:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "first request after the window is allowed")
	assert.Equal(t, policy.Limit-1, res.Remaining)
	assert.Equal(t, epoch.Add(2*policy.Window), res.ResetAt)
}

func TestLimiter_RetryAfterRoundsUp(t *testing.T) {
	t.Parallel()

	mock := newMockClock()
	limiter := newLimiter(t, newMemoryStore(t), ratelimit.WithClock(mock))
	policy, _ := limiter.Registry().Lookup(ratelimit.PolicyLogin)
	ctx := context.Background()

	for range policy.Limit {
		_, err := limiter.Check(ctx, policy.ID, "10.0.0.2")
		require.NoError(t, err)
	}

	mock.Add(10*time.Minute + 500*time.Millisecond)
	res, err := limiter.Check(ctx, policy.ID, "10.0.0.2")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Equal(t, policy.Window-10*time.Minute-500*time.Millisecond, res.RetryAfter)
	assert.Equal(t, int((policy.Window-10*time.Minute).Seconds()), res.RetryAfterSeconds())
}

func TestLimiter_DeniedRequestsAreCounted(t *testing.T) {
	t.Parallel()

	mock := newMockClock()
	store := newMemoryStore(t)
	limiter := newLimiter(t, store, ratelimit.WithClock(mock))
	policy, _ := limiter.Registry().Lookup(ratelimit.PolicyTwoFactorChallenge)
	ctx := context.Background()

	for range policy.Limit + 3 {
		_, err := limiter.Check(ctx, policy.ID, "k")
		require.NoError(t, err)
	}

	count, _, err := store.Hit(ctx, policy.Name+":k", policy.Window, mock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(policy.Limit+4), count)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter := newLimiter(t, newMemoryStore(t), ratelimit.WithClock(newMockClock()))
	policy, _ := limiter.Registry().Lookup(ratelimit.PolicyTwoFactorRegenerate)
	ctx := context.Background()

	for range policy.Limit + 1 {
		_, _ = limiter.Check(ctx, policy.ID, "a")
	}

	res, err := limiter.Check(ctx, policy.ID, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Check(ctx, ratelimit.PolicyTwoFactorDisable, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "policies do not share buckets")
}

func TestLimiter_ConcurrentChecksAtLimitBoundary(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) ratelimit.Store{
		"memory": func(t *testing.T) ratelimit.Store { return newMemoryStore(t) },
		"redis":  func(t *testing.T) ratelimit.Store { return newRedisStore(t) },
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			for round := range 20 {
				limiter := newLimiter(t, mk(t), ratelimit.WithClock(newMockClock()))
				policy, _ := limiter.Registry().Lookup(ratelimit.PolicyTwoFactorVerify)
				ctx := context.Background()
				key := "race"

				for range policy.Limit - 1 {
					res, err := limiter.Check(ctx, policy.ID, key)
					require.NoError(t, err)
					require.True(t, res.Allowed)
				}

				var (
					wg      sync.WaitGroup
					start   = make(chan struct{})
					results = make([]ratelimit.Result, 2)
				)
				for i := range results {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						<-start
						results[i], _ = limiter.Check(ctx, policy.ID, key)
					}(i)
				}
				close(start)
				wg.Wait()

				allowed := 0
				for _, r := range results {
					if r.Allowed {
						allowed++
					}
				}
				assert.Equal(t, 1, allowed, "round %d: exactly one of the racing requests is admitted", round)
			}
		})
	}
}

func TestLimiter_ConcurrentBurst(t *testing.T) {
	t.Parallel()

	limiter := newLimiter(t, newMemoryStore(t), ratelimit.WithClock(newMockClock()))
	policy, _ := limiter.Registry().Lookup(ratelimit.PolicyAutocomplete)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range policy.Limit * 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Check(ctx, policy.ID, "burst")
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, policy.Limit, allowed)
}

func TestLimiter_UnknownPolicy(t *testing.T) {
	t.Parallel()

	unknown := ratelimit.PolicyID(200)

	t.Run("development panics", func(t *testing.T) {
		t.Parallel()
		limiter := newLimiter(t, newMemoryStore(t), ratelimit.WithEnvironment(environment.Development))
		assert.Panics(t, func() {
			_, _ = limiter.Check(context.Background(), unknown, "k")
		})
	})

	for _, env := range []environment.Environment{environment.Staging, environment.Production} {
		t.Run(env.String()+" denies", func(t *testing.T) {
			t.Parallel()
			limiter := newLimiter(t, newMemoryStore(t), ratelimit.WithEnvironment(env))
			res, err := limiter.Check(context.Background(), unknown, "k")
			assert.ErrorIs(t, err, ratelimit.ErrUnknownPolicy)
			assert.False(t, res.Allowed)
		})
	}
}

func TestLimiter_EmptyKeyDenied(t *testing.T) {
	t.Parallel()

	limiter := newLimiter(t, newMemoryStore(t))
	res, err := limiter.Check(context.Background(), ratelimit.PolicyLogin, "")
	assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
	assert.False(t, res.Allowed)
}

func TestLimiter_StoreFailure(t *testing.T) {
	t.Parallel()

	limiter := newLimiter(t, failingStore{})
	ctx := context.Background()

	tests := []struct {
		policy  ratelimit.PolicyID
		allowed bool
	}{
		{ratelimit.PolicyLogin, false},
		{ratelimit.PolicyTwoFactorVerify, false},
		{ratelimit.PolicyTwoFactorChallenge, false},
		{ratelimit.PolicyContactSubmit, true},
		{ratelimit.PolicyAutocomplete, true},
		{ratelimit.PolicyAccountRead, true},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			t.Parallel()
			res, err := limiter.Check(ctx, tt.policy, "k")
			assert.ErrorIs(t, err, ratelimit.ErrStoreUnavailable)
			assert.ErrorIs(t, err, errBackendDown)
			assert.Equal(t, tt.allowed, res.Allowed)
			if !tt.allowed {
				assert.GreaterOrEqual(t, res.RetryAfterSeconds(), 1)
			}
		})
	}

	assert.ErrorIs(t, limiter.Reset(ctx, ratelimit.PolicyLogin, "k"), ratelimit.ErrStoreUnavailable)
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()

	limiter := newLimiter(t, newMemoryStore(t), ratelimit.WithClock(newMockClock()))
	policy, _ := limiter.Registry().Lookup(ratelimit.PolicyPasswordReset)
	ctx := context.Background()

	for range policy.Limit + 1 {
		_, _ = limiter.Check(ctx, policy.ID, "k")
	}
	require.NoError(t, limiter.Reset(ctx, policy.ID, "k"))

	res, err := limiter.Check(ctx, policy.ID, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, policy.Limit-1, res.Remaining)

	assert.ErrorIs(t, limiter.Reset(ctx, policy.ID, ""), ratelimit.ErrKeyRequired)
	assert.ErrorIs(t, limiter.Reset(ctx, ratelimit.PolicyID(0), "k"), ratelimit.ErrUnknownPolicy)
}

func TestLimiter_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := ratelimit.NewMetrics(reg)
	limiter := newLimiter(t, newMemoryStore(t), ratelimit.WithClock(newMockClock()), ratelimit.WithMetrics(metrics))
	policy, _ := limiter.Registry().Lookup(ratelimit.PolicyTwoFactorRegenerate)
	ctx := context.Background()

	for range policy.Limit + 2 {
		_, _ = limiter.Check(ctx, policy.ID, "k")
	}

	assert.InDelta(t, float64(policy.Limit), testutil.ToFloat64(metrics.Decisions.WithLabelValues(policy.Name, "allowed")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.Decisions.WithLabelValues(policy.Name, "denied")), 0)

	failing := newLimiter(t, failingStore{}, ratelimit.WithMetrics(metrics))
	_, _ = failing.Check(ctx, ratelimit.PolicyLogin, "k")
	_, _ = failing.Check(ctx, ratelimit.PolicyAccountRead, "k")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Decisions.WithLabelValues("auth:login", "fail_closed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Decisions.WithLabelValues("account:read", "fail_open")), 0)
}

func TestResult_RetryAfterSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result ratelimit.Result
		want   int
	}{
		{"allowed", ratelimit.Result{Allowed: true, RetryAfter: time.Minute}, 0},
		{"whole seconds", ratelimit.Result{RetryAfter: 30 * time.Second}, 30},
		{"rounds up", ratelimit.Result{RetryAfter: 29*time.Second + time.Millisecond}, 30},
		{"never below one", ratelimit.Result{RetryAfter: 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.result.RetryAfterSeconds())
		})
	}
}
