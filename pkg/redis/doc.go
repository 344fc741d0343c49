// Package redis connects go-redis clients for the shared rate-limit store.
// Connect retries until the server answers PING; Healthcheck wraps PING as a
// readiness check.
package redis
