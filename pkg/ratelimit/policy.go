package ratelimit

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyID identifies a rate limit policy. The set is closed: only the
// constants below resolve in a Registry.
type PolicyID uint8

const (
	PolicyLogin PolicyID = iota + 1
	PolicySignup
	PolicyPasswordReset
	PolicyTwoFactorSetup
	PolicyTwoFactorVerify
	PolicyTwoFactorDisable
	PolicyTwoFactorRegenerate
	PolicyTwoFactorChallenge
	PolicyTwoFactorChallengeUser
	PolicyContactSubmit
	PolicyAutocomplete
	PolicyAccountRead
)

var policyNames = map[PolicyID]string{
	PolicyLogin:                  "auth:login",
	PolicySignup:                 "auth:signup",
	PolicyPasswordReset:          "auth:password-reset",
	PolicyTwoFactorSetup:         "auth:2fa-setup",
	PolicyTwoFactorVerify:        "auth:2fa-verify",
	PolicyTwoFactorDisable:       "auth:2fa-disable",
	PolicyTwoFactorRegenerate:    "auth:2fa-regenerate",
	PolicyTwoFactorChallenge:     "auth:2fa-challenge",
	PolicyTwoFactorChallengeUser: "auth:2fa-challenge-user",
	PolicyContactSubmit:          "contact:submit",
	PolicyAutocomplete:           "search:autocomplete",
	PolicyAccountRead:            "account:read",
}

// String returns the policy name, or a placeholder for ids outside the set.
func (id PolicyID) String() string {
	if name, ok := policyNames[id]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", uint8(id))
}

// FailMode decides the outcome of a check when the store cannot answer.
type FailMode uint8

const (
	// FailClosed denies the request.
	FailClosed FailMode = iota
	// FailOpen admits the request.
	FailOpen
)

func (m FailMode) String() string {
	if m == FailOpen {
		return "open"
	}
	return "closed"
}

func parseFailMode(s string) (FailMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed":
		return FailClosed, nil
	case "open":
		return FailOpen, nil
	}
	return FailClosed, fmt.Errorf("%w: fail mode %q", ErrInvalidOverrides, s)
}

// Policy is the resolved configuration for a PolicyID.
type Policy struct {
	ID       PolicyID
	Name     string
	Window   time.Duration
	Limit    int
	FailMode FailMode
}

// Validate checks that the policy can be enforced.
func (p Policy) Validate() error {
	if _, ok := policyNames[p.ID]; !ok {
		return errors.Join(ErrInvalidPolicy, ErrUnknownPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be positive", ErrInvalidPolicy, p.Name)
	}
	if p.Limit <= 0 {
		return fmt.Errorf("%w: %s: limit must be positive", ErrInvalidPolicy, p.Name)
	}
	return nil
}

func defaultPolicies() map[PolicyID]Policy {
	defs := []Policy{
		{ID: PolicyLogin, Window: 15 * time.Minute, Limit: 10, FailMode: FailClosed},
		{ID: PolicySignup, Window: time.Hour, Limit: 5, FailMode: FailClosed},
		{ID: PolicyPasswordReset, Window: time.Hour, Limit: 5, FailMode: FailClosed},
		{ID: PolicyTwoFactorSetup, Window: 15 * time.Minute, Limit: 5, FailMode: FailClosed},
		{ID: PolicyTwoFactorVerify, Window: 15 * time.Minute, Limit: 5, FailMode: FailClosed},
		{ID: PolicyTwoFactorDisable, Window: 15 * time.Minute, Limit: 5, FailMode: FailClosed},
		{ID: PolicyTwoFactorRegenerate, Window: time.Hour, Limit: 3, FailMode: FailClosed},
		{ID: PolicyTwoFactorChallenge, Window: 15 * time.Minute, Limit: 5, FailMode: FailClosed},
		// Per user across all addresses, so rotating IPs does not buy more guesses.
		{ID: PolicyTwoFactorChallengeUser, Window: 15 * time.Minute, Limit: 10, FailMode: FailClosed},
		{ID: PolicyContactSubmit, Window: time.Hour, Limit: 5, FailMode: FailOpen},
		{ID: PolicyAutocomplete, Window: time.Minute, Limit: 60, FailMode: FailOpen},
		{ID: PolicyAccountRead, Window: time.Minute, Limit: 60, FailMode: FailOpen},
	}

	out := make(map[PolicyID]Policy, len(defs))
	for _, p := range defs {
		p.Name = policyNames[p.ID]
		out[p.ID] = p
	}
	return out
}

// Registry maps policy ids to their configuration. It is immutable once built.
type Registry struct {
	policies map[PolicyID]Policy
}

// NewRegistry returns the built-in policy table.
func NewRegistry() *Registry {
	return &Registry{policies: defaultPolicies()}
}

// Lookup resolves id.
func (r *Registry) Lookup(id PolicyID) (Policy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// Policies returns every policy ordered by id.
func (r *Registry) Policies() []Policy {
	out := make([]Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Policy) int { return int(a.ID) - int(b.ID) })
	return out
}

type overrideFile struct {
	Policies map[string]policyOverride `yaml:"policies"`
}

type policyOverride struct {
	Window   *time.Duration `yaml:"window"`
	Limit    *int           `yaml:"limit"`
	FailMode *string        `yaml:"fail_mode"`
}

// LoadOverrides builds a registry from the defaults with the YAML document in
// src applied on top:
//
//	policies:
//	  auth:login:
//	    window: 10m
//	    limit: 20
//	    fail_mode: closed
//
// Overrides may only tune existing policies. An unknown name is an error.
func LoadOverrides(src io.Reader) (*Registry, error) {
	var file overrideFile
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidOverrides, err)
	}

	byName := make(map[string]PolicyID, len(policyNames))
	for id, name := range policyNames {
		byName[name] = id
	}

	reg := NewRegistry()
	for name, o := range file.Policies {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
		}

		p := reg.policies[id]
		if o.Window != nil {
			p.Window = *o.Window
		}
		if o.Limit != nil {
			p.Limit = *o.Limit
		}
		if o.FailMode != nil {
			mode, err := parseFailMode(*o.FailMode)
			if err != nil {
				return nil, err
			}
			p.FailMode = mode
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		reg.policies[id] = p
	}

	return reg, nil
}
