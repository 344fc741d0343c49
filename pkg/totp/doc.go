// Package totp implements RFC 6238 time-based one-time passwords for
// authenticator-app second factors.
//
// The package never persists anything. A Secret is the raw shared key held in
// memory only for as long as a caller needs it; Zero wipes it. Persisting the
// key is the caller's job (see pkg/secrets for the at-rest codec).
//
// # Usage
//
//	secret, _ := totp.GenerateSecret()
//	defer secret.Zero()
//
//	engine := totp.NewEngine("LessonMart")
//	uri, _ := engine.ProvisioningURI("alice@example.com", secret)
//
//	ok := engine.Validate("123456", secret)
//
// Codes are 6 digits over a 30-second step using HMAC-SHA1, the parameters
// every mainstream authenticator app supports. Validation accepts the previous,
// current and next step to absorb clock drift, compares in constant time and
// rejects anything that is not exactly six ASCII digits before touching the key.
//
// # See Also
//
//   - RFC 4226 – HMAC-Based One-Time Password (HOTP) Algorithm
//   - RFC 6238 – Time-Based One-Time Password (TOTP) Algorithm
//   - https://github.com/google/google-authenticator/wiki/Key-Uri-Format
package totp
