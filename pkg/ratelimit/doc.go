// Package ratelimit implements keyed fixed-window rate limiting driven by a
// closed set of named policies.
//
// Policies are compile-time constants (PolicyID) resolved through a Registry
// to a window, a limit and a failure mode. A window starts with the first
// request for a (policy, key) pair; every Check inside it increments the
// counter whether or not the request is admitted, so probing a limit is never
// free. Once the window has elapsed the next Check opens a fresh one.
//
// Basic usage:
//
//	store := ratelimit.NewMemoryStore()
//	defer store.Close()
//
//	limiter, err := ratelimit.New(store, ratelimit.WithEnvironment(environment.Production))
//	if err != nil {
//		return err
//	}
//
//	res, err := limiter.Check(ctx, ratelimit.PolicyLogin, ratelimit.IPKey(ip))
//	if !res.Allowed {
//		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
//	}
//
// # Stores
//
// MemoryStore keeps buckets in a sharded map guarded by one mutex per shard and
// evicts buckets whose window plus a grace period has elapsed. RedisStore runs
// the read-increment-write as a single Lua script and is the store to use when
// more than one process enforces the same limits.
//
// # Failure handling
//
// A store error is resolved by the policy's FailMode. Authentication policies
// fail closed, low-stakes read policies fail open. Either way Check returns an
// error wrapping ErrStoreUnavailable alongside the decision.
//
// An unknown PolicyID panics in development and is denied with
// ErrUnknownPolicy in every other environment.
package ratelimit
