package crawler

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/crypto/sha3"
)

// uqIDSize is the digest length in bytes (128 bits).
const uqIDSize = 16

// Normalizer canonicalizes URLs so that equivalent spellings share one uqId.
//
// The canonical form has a lower-case scheme and host, no default port, no
// fragment, a non-empty path with dot segments resolved, and query
// parameters sorted by key (or removed entirely).
type Normalizer struct {
	removeQuery bool
}

// NewNormalizer returns a Normalizer. When removeQueryParams is true the
// query string is dropped from every URL.
func NewNormalizer(removeQueryParams bool) *Normalizer {
	return &Normalizer{removeQuery: removeQueryParams}
}

// Normalize resolves raw against base and returns the canonical URL and its
// uqId. base may be nil when raw is absolute.
func (n *Normalizer) Normalize(raw string, base *url.URL) (string, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", &NormalizationError{Raw: raw, Err: ErrEmptyURL}
	}

	ref, err := url.Parse(trimmed)
	if err != nil {
		return "", "", &NormalizationError{Raw: raw, Err: fmt.Errorf("%w: %v", ErrMalformedURL, err)}
	}

	var u *url.URL
	switch {
	case ref.IsAbs():
		// ResolveReference also removes dot segments from absolute URLs.
		u = (&url.URL{}).ResolveReference(ref)
	case base == nil:
		return "", "", &NormalizationError{Raw: raw, Err: ErrMissingBase}
	default:
		u = base.ResolveReference(ref)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", &NormalizationError{Raw: raw, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}
	if u.Hostname() == "" {
		return "", "", &NormalizationError{Raw: raw, Err: fmt.Errorf("%w: missing host", ErrMalformedURL)}
	}

	u.Host = canonicalHost(u.Scheme, u.Hostname(), u.Port())
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	u.Opaque = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	switch {
	case n.removeQuery:
		u.RawQuery = ""
	case u.RawQuery != "":
		if values, err := url.ParseQuery(u.RawQuery); err == nil {
			u.RawQuery = values.Encode()
		}
	}

	canonical := u.String()
	return canonical, UqID(canonical), nil
}

// canonicalHost lower-cases the host and drops the scheme's default port.
func canonicalHost(scheme, hostname, port string) string {
	hostname = strings.ToLower(hostname)
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(hostname, port)
	}
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]"
	}
	return hostname
}

// UqID returns the stable identifier of a canonical URL: the hex encoded
// 128-bit SHAKE128 digest of the string.
func UqID(canonical string) string {
	sum := make([]byte, uqIDSize)
	sha3.ShakeSum128(sum, []byte(canonical))
	return hex.EncodeToString(sum)
}
