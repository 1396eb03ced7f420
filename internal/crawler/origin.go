package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// OriginPolicy decides whether a URL belongs to the crawl's root origin.
// URLs outside the origin are recorded as external and never fetched.
type OriginPolicy int

const (
	// OriginSchemeHost compares scheme, host name and port. This is the default.
	OriginSchemeHost OriginPolicy = iota

	// OriginHost compares the host name only, so http and https (and any
	// port) of the same host are internal.
	OriginHost

	// OriginRegistrableDomain compares the registrable domain (eTLD+1), so
	// every subdomain of example.com is internal.
	OriginRegistrableDomain
)

// String returns the flag value of the policy.
func (p OriginPolicy) String() string {
	switch p {
	case OriginHost:
		return "host"
	case OriginRegistrableDomain:
		return "registrable-domain"
	default:
		return "scheme-host"
	}
}

// ParseOriginPolicy parses a flag value. The empty string selects the default.
func ParseOriginPolicy(s string) (OriginPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scheme-host":
		return OriginSchemeHost, nil
	case "host":
		return OriginHost, nil
	case "registrable-domain", "domain":
		return OriginRegistrableDomain, nil
	default:
		return OriginSchemeHost, fmt.Errorf("%w: %q", ErrUnknownOriginPolicy, s)
	}
}

// SameOrigin reports whether target is internal relative to root.
// Both URLs are expected to be normalized.
func (p OriginPolicy) SameOrigin(root, target *url.URL) bool {
	if root == nil || target == nil {
		return false
	}
	switch p {
	case OriginHost:
		return strings.EqualFold(root.Hostname(), target.Hostname())
	case OriginRegistrableDomain:
		return strings.EqualFold(registrableDomain(root.Hostname()), registrableDomain(target.Hostname()))
	default:
		return strings.EqualFold(root.Scheme, target.Scheme) &&
			strings.EqualFold(root.Hostname(), target.Hostname()) &&
			root.Port() == target.Port()
	}
}

// registrableDomain returns eTLD+1 for host, or host itself for IP
// addresses, single-label names and public suffixes.
func registrableDomain(host string) string {
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	if err != nil {
		return strings.ToLower(host)
	}
	return domain
}
