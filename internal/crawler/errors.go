package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors for URL normalization.
var (
	// ErrEmptyURL is returned when the raw URL is blank.
	ErrEmptyURL = errors.New("empty URL")

	// ErrMalformedURL is returned when the raw URL cannot be parsed or has no host.
	ErrMalformedURL = errors.New("malformed URL")

	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrMissingBase is returned when a relative URL has nothing to resolve against.
	ErrMissingBase = errors.New("relative URL without base")
)

// Sentinel errors for the crawl engine.
var (
	// ErrNoSeeds is returned when a crawl is started without seed URLs.
	ErrNoSeeds = errors.New("no seed URLs")

	// ErrFrontierClosed is returned when offering to a closed frontier.
	ErrFrontierClosed = errors.New("frontier is closed")

	// ErrUnknownOriginPolicy is returned for unrecognized origin policy names.
	ErrUnknownOriginPolicy = errors.New("unknown origin policy")

	// ErrUnsupportedEncoding is returned for unknown Content-Encoding values.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")

	// ErrSitemapUnavailable is returned when a sitemap cannot be fetched.
	ErrSitemapUnavailable = errors.New("sitemap unavailable")
)

// NormalizationError reports a URL that could not be canonicalized.
// The offending link is dropped and recorded as a diagnostic.
type NormalizationError struct {
	Raw string
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %q: %v", e.Raw, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// Transport error kinds stored in VisitedURL.Extras["errorKind"].
const (
	ErrorKindDNS     = "dns"
	ErrorKindTLS     = "tls"
	ErrorKindConnect = "connect"
	ErrorKindTimeout = "timeout"
	ErrorKindRequest = "request"
)

// TransportError describes a fetch that produced no usable HTTP response.
// It is recorded on the VisitedURL and never aborts the crawl.
type TransportError struct {
	URL  string
	Kind string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
