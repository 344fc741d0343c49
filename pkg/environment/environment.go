// Package environment names the deployment environments authcore can run in.
package environment

import "strings"

// Environment represents application environment.
type Environment string

const (
	// Development for local work. Programmer errors panic.
	Development Environment = "development"
	// Staging mirrors production behavior.
	Staging Environment = "staging"
	// Production for live traffic.
	Production Environment = "production"
)

// Parse maps a configuration value to an Environment.
// Short aliases are accepted; anything unrecognised is treated as Development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Production), "prod":
		return Production
	case string(Staging), "stage":
		return Staging
	default:
		return Development
	}
}

// IsDevelopment reports whether e is the development environment.
func (e Environment) IsDevelopment() bool {
	return e == Development || e == ""
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}

func (e Environment) String() string {
	if e == "" {
		return string(Development)
	}
	return string(e)
}
