package totp

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Engine binds TOTP operations to an issuer name and a clock.
type Engine struct {
	issuer string
	clock  clock.Clock
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewEngine creates an Engine that labels enrollments with issuer.
func NewEngine(issuer string, opts ...EngineOption) *Engine {
	e := &Engine{
		issuer: issuer,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Issuer returns the configured issuer label.
func (e *Engine) Issuer() string {
	return e.issuer
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// ProvisioningURI formats an enrollment URI for account.
func (e *Engine) ProvisioningURI(account string, secret *Secret) (string, error) {
	return ProvisioningURI(e.issuer, account, secret)
}

// Code returns the code for the current step.
func (e *Engine) Code(secret *Secret) string {
	return ComputeCode(secret, TimeStep(e.clock.Now()))
}

// Validate checks code against secret at the engine's current time.
func (e *Engine) Validate(code string, secret *Secret) bool {
	return ValidateAt(code, secret, e.clock.Now())
}

// Match checks code like Validate and returns the matching step.
func (e *Engine) Match(code string, secret *Secret) (int64, bool) {
	return MatchAt(code, secret, e.clock.Now())
}
