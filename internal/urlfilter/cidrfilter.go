package urlfilter

import (
	"context"
	"fmt"
	"net"

	"github.com/imgproxy/imgproxy/internal/config"
	cidranger "github.com/libp2p/go-cidranger"
)

// ruleEntry adapts one configured IPFilterRule to cidranger's
// RangerEntry interface, carrying the rule's action alongside the
// network it matches.
type ruleEntry struct {
	network net.IPNet
	action  config.IPFilterAction
}

func (e ruleEntry) Network() net.IPNet {
	return e.network
}

// CIDRFilter is the optional, operator-configured second C1 stage: an
// explicit allow/deny list of CIDR ranges, layered on top of
// PrivateNetworkFilter's automatic global/non-global classification.
// Grounded on the unwired IpFilter/FilterAction scaffold in the
// original source's http/filters/ip.rs, actually wired here via
// go-cidranger's trie-backed containing-network lookup.
type CIDRFilter struct {
	ranger        cidranger.Ranger
	defaultAction config.IPFilterAction
	resolver      DnsResolver
}

// NewCIDRFilter builds a filter from the configured rule list.
func NewCIDRFilter(cfg config.IPFilterConfig, resolver DnsResolver) (*CIDRFilter, error) {
	ranger := cidranger.NewPCTrieRanger()
	for _, rule := range cfg.Rules {
		_, network, err := net.ParseCIDR(rule.Destination)
		if err != nil {
			return nil, fmt.Errorf("urlfilter: invalid CIDR %q: %w", rule.Destination, err)
		}
		action := rule.Action
		if action == "" {
			action = config.IPFilterDeny
		}
		if err := ranger.Insert(ruleEntry{network: *network, action: action}); err != nil {
			return nil, fmt.Errorf("urlfilter: inserting %q: %w", rule.Destination, err)
		}
	}
	action := cfg.DefaultAction
	if action == "" {
		action = config.IPFilterAllow
	}
	return &CIDRFilter{ranger: ranger, defaultAction: action, resolver: resolver}, nil
}

// Allow denies a host if any of its resolved addresses matches a Deny
// rule, or falls through to the configured default action when no
// rule matches at all.
func (f *CIDRFilter) Allow(ctx context.Context, host string) bool {
	ips, err := f.resolver.Resolve(ctx, host)
	if err != nil || len(ips) == 0 {
		return false
	}
	for _, ip := range ips {
		if !f.allowOne(ip) {
			return false
		}
	}
	return true
}

func (f *CIDRFilter) allowOne(ip net.IP) bool {
	entries, err := f.ranger.ContainingNetworks(ip)
	if err != nil {
		return false
	}
	if len(entries) == 0 {
		return f.defaultAction == config.IPFilterAllow
	}
	// Any Deny rule among the containing networks denies the address
	// outright, whatever its prefix length; otherwise a match allows it.
	for _, e := range entries {
		if re, ok := e.(ruleEntry); ok && re.action == config.IPFilterDeny {
			return false
		}
	}
	return true
}
