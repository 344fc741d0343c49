package clientip

import (
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

var ErrInvalidProxy = errors.New("invalid trusted proxy prefix")

// DefaultHeaders are consulted in order when the peer is a trusted proxy.
var DefaultHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// Resolver extracts the originating client address. Forwarding headers are
// only believed when the TCP peer is a trusted proxy; otherwise any client
// could pick its own rate-limit bucket.
type Resolver struct {
	trusted []netip.Prefix
	headers []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHeaders replaces DefaultHeaders.
func WithHeaders(headers ...string) Option {
	return func(r *Resolver) {
		r.headers = headers
	}
}

// New creates a Resolver trusting the given CIDR prefixes or bare addresses.
// With no trusted proxies the TCP peer address is always used.
func New(trustedProxies []string, opts ...Option) (*Resolver, error) {
	r := &Resolver{headers: DefaultHeaders}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		prefix, err := parsePrefix(raw)
		if err != nil {
			return nil, errors.Join(ErrInvalidProxy, err)
		}
		r.trusted = append(r.trusted, prefix)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// IP returns the client address of req in canonical form, or "" when none
// can be determined.
func (r *Resolver) IP(req *http.Request) string {
	peer, ok := peerAddr(req.RemoteAddr)
	if !ok {
		return ""
	}
	if !r.isTrusted(peer) {
		return peer.String()
	}

	for _, h := range r.headers {
		v := req.Header.Get(h)
		if v == "" {
			continue
		}
		if ip, ok := r.fromHeader(h, v); ok {
			return ip.String()
		}
	}
	return peer.String()
}

// fromHeader parses a forwarding header value. X-Forwarded-For is read right
// to left, skipping trusted hops, so the first untrusted address wins.
func (r *Resolver) fromHeader(name, value string) (netip.Addr, bool) {
	if !strings.EqualFold(name, "X-Forwarded-For") {
		return parseAddr(value)
	}

	hops := strings.Split(value, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip, ok := parseAddr(hops[i])
		if !ok {
			return netip.Addr{}, false
		}
		if !r.isTrusted(ip) {
			return ip, true
		}
	}
	return netip.Addr{}, false
}

func (r *Resolver) isTrusted(ip netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func parsePrefix(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func peerAddr(remote string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	return parseAddr(host)
}

func parseAddr(s string) (netip.Addr, bool) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}
