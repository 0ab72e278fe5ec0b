// Package urlfilter implements C1: SSRF defense by rejecting URLs that
// resolve to non-global address space. Filters compose by logical AND.
package urlfilter

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
)

// DnsResolver resolves a hostname to the set of addresses a client
// would actually connect to. StandardResolver wraps net.Resolver;
// StaticResolver is the test double used throughout this package's
// tests and the fetcher's.
type DnsResolver interface {
	Resolve(ctx context.Context, host string) ([]net.IP, error)
}

// StandardResolver resolves via the stdlib resolver.
type StandardResolver struct{}

func (StandardResolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// StaticResolver always resolves to a fixed address set, for tests.
type StaticResolver struct {
	Addrs []net.IP
	Err   error
}

func (s StaticResolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Addrs, nil
}

// Filter decides whether a resolved host may be fetched from.
type Filter interface {
	Allow(ctx context.Context, host string) bool
}

// Chain composes filters by logical AND: every filter must allow for
// the chain to allow. An empty chain denies everything, matching the
// original's assertion that running with no filters is unsafe.
type Chain []Filter

func (c Chain) Allow(ctx context.Context, host string) bool {
	if len(c) == 0 {
		return false
	}
	for _, f := range c {
		if !f.Allow(ctx, host) {
			return false
		}
	}
	return true
}

// PrivateNetworkFilter denies hosts that fail to resolve, resolve to no
// addresses, or resolve to any address outside the globally routable
// Internet address space.
type PrivateNetworkFilter struct {
	Resolver DnsResolver
	Logger   *slog.Logger
}

func NewPrivateNetworkFilter(resolver DnsResolver, logger *slog.Logger) *PrivateNetworkFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrivateNetworkFilter{Resolver: resolver, Logger: logger}
}

func (f *PrivateNetworkFilter) Allow(ctx context.Context, host string) bool {
	if host == "" {
		f.Logger.Warn("url filter: no host specified in request")
		return false
	}
	ips, err := f.Resolver.Resolve(ctx, host)
	if err != nil {
		f.Logger.Error("url filter: dns resolution error", "host", host, "error", err)
		return false
	}
	if len(ips) == 0 {
		return false
	}
	for _, ip := range ips {
		if !isGlobal(ip) {
			f.Logger.Debug("url filter: denying non-global address", "host", host, "ip", ip.String())
			return false
		}
	}
	return true
}

// isGlobal reports whether ip belongs to the globally routable Internet
// address space: not private, not loopback, not link-local, not
// unspecified, and not the limited broadcast address (net.IP's own
// IsGlobalUnicast does not exclude 255.255.255.255).
func isGlobal(ip net.IP) bool {
	if ip.Equal(net.IPv4bcast) {
		return false
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	addr, ok := netip.AddrFromSlice(ip.To16())
	if !ok {
		return ip.IsGlobalUnicast()
	}
	return addr.IsGlobalUnicast()
}
