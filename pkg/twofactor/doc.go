// Package twofactor manages TOTP two-factor authentication for password
// accounts: enrollment, confirmation, sign-in challenges, backup codes and
// disabling.
//
// A user's record moves through three states:
//
//	disabled --setup--> pending_setup --verify--> enabled --disable--> disabled
//	                    pending_setup --setup--> pending_setup (new secret)
//	                                             enabled --regenerate--> enabled
//
// Every operation is rate limited per user and client address before any
// secret material is touched, and every state change runs inside
// Storage.Update so concurrent requests for one user are serialized. The
// TOTP secret is stored encrypted with the user id bound as associated data;
// backup codes are stored as SHA-256 hashes and accepted at most once.
//
// Failures are returned as *Error carrying a Reason suitable for the caller.
package twofactor
