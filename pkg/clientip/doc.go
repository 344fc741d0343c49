// Package clientip resolves the originating client address of an HTTP
// request for per-address rate limiting.
//
// Forwarding headers (CF-Connecting-IP, X-Forwarded-For, X-Real-IP) are
// honored only when the TCP peer falls inside a trusted proxy prefix. An
// untrusted peer is always identified by its own address.
//
//	resolver, err := clientip.New([]string{"10.0.0.0/8"})
//	if err != nil {
//		return err
//	}
//	r.Use(resolver.Middleware)
//	...
//	ip := clientip.FromContext(req.Context())
package clientip
