package model

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Status sentinels stored in VisitedURL.StatusCode when no HTTP response was
// received.
const (
	StatusConnectionError = -1
	StatusTimeout         = -2
	StatusRequestError    = -3
)

// Keys used in VisitedURL.Extras.
const (
	ExtraError     = "error"
	ExtraErrorKind = "errorKind"
	ExtraLocation  = "location"
	ExtraTitle     = "title"
)

// NoSource is the SourceUqID of seed URLs.
const NoSource = ""

// FoundURL is a discovered URL before it is fetched.
// It is a value type; copies are never mutated.
type FoundURL struct {
	// URL is the absolute, normalized URL.
	URL string `json:"url"`

	// UqID is the stable identifier derived from URL.
	UqID string `json:"uq_id"`

	// SourceUqID is the UqID of the page the URL was found on, or NoSource.
	SourceUqID string `json:"source_uq_id,omitempty"`

	// Source records the element attribute the URL came from.
	Source SourceAttribute `json:"source"`

	// Depth is the hop count from the seed (seeds have depth 0).
	Depth int `json:"depth"`
}

// CacheType is a bit set describing which caching headers a response carried.
type CacheType uint8

const (
	CacheTypeCacheControl CacheType = 1 << iota
	CacheTypeExpires
	CacheTypeETag
	CacheTypeLastModified
	CacheTypeNoStore
)

// Has reports whether all bits of flag are set.
func (c CacheType) Has(flag CacheType) bool {
	return c&flag == flag
}

// VisitedURL is the outcome of one fetch attempt. It is created once by a
// fetch worker and never mutated after being handed to the aggregator.
type VisitedURL struct {
	UqID       string          `json:"uq_id"`
	SourceUqID string          `json:"source_uq_id,omitempty"`
	Source     SourceAttribute `json:"source"`
	URL        string          `json:"url"`
	Depth      int             `json:"depth"`

	// StatusCode is the HTTP status or one of the negative Status* sentinels.
	StatusCode int `json:"status_code"`

	// RequestTime is the fetch duration in seconds.
	RequestTime float64 `json:"request_time"`

	// Size is the decoded body length in bytes.
	Size int64 `json:"size"`

	ContentType       ContentType `json:"content_type"`
	ContentTypeHeader string      `json:"content_type_header,omitempty"`
	ContentEncoding   string      `json:"content_encoding,omitempty"`

	IsExternal           bool `json:"is_external"`
	IsAllowedForCrawling bool `json:"is_allowed_for_crawling"`

	CacheType     CacheType `json:"cache_type"`
	CacheLifetime *int      `json:"cache_lifetime,omitempty"`

	// Headers are the response headers. Nil for transport failures.
	Headers http.Header `json:"-"`

	Extras map[string]string `json:"extras,omitempty"`

	// FetchedAt is when the fetch completed.
	FetchedAt time.Time `json:"fetched_at"`
}

// IsTransportFailure reports whether no HTTP response was received.
func (v *VisitedURL) IsTransportFailure() bool {
	return v.StatusCode < 0
}

// IsSuccess reports whether the response had a 2xx or 3xx status.
func (v *VisitedURL) IsSuccess() bool {
	return v.StatusCode >= 200 && v.StatusCode < 400
}

// IsFailure reports whether the fetch failed at transport level or the
// server answered with an error status.
func (v *VisitedURL) IsFailure() bool {
	return v.IsTransportFailure() || v.StatusCode >= 400
}

// IsHTML reports whether the body was classified as HTML.
func (v *VisitedURL) IsHTML() bool {
	return v.ContentType == ContentTypeHTML
}

// Extra returns an extras value or "".
func (v *VisitedURL) Extra(key string) string {
	if v.Extras == nil {
		return ""
	}
	return v.Extras[key]
}

// Header returns a response header value or "".
func (v *VisitedURL) Header(key string) string {
	if v.Headers == nil {
		return ""
	}
	return v.Headers.Get(key)
}

// StatusText returns the status code, or the sentinel name for transport
// failures.
func (v *VisitedURL) StatusText() string {
	switch v.StatusCode {
	case StatusConnectionError:
		return "connection error"
	case StatusTimeout:
		return "timeout"
	case StatusRequestError:
		return "request error"
	default:
		return strconv.Itoa(v.StatusCode)
	}
}

// ParseCacheInfo derives cache metadata from response headers.
// The lifetime comes from s-maxage, then max-age, then Expires relative to
// now. no-store and no-cache force a zero lifetime.
func ParseCacheInfo(h http.Header, now time.Time) (CacheType, *int) {
	var cacheType CacheType
	var lifetime *int

	if h == nil {
		return cacheType, nil
	}

	if cc := h.Get("Cache-Control"); cc != "" {
		cacheType |= CacheTypeCacheControl
		maxAge, sMaxAge := -1, -1
		for _, directive := range strings.Split(cc, ",") {
			name, value, _ := strings.Cut(strings.TrimSpace(strings.ToLower(directive)), "=")
			switch name {
			case "no-store":
				cacheType |= CacheTypeNoStore
			case "max-age":
				if n, err := strconv.Atoi(strings.Trim(value, `"`)); err == nil {
					maxAge = n
				}
			case "s-maxage":
				if n, err := strconv.Atoi(strings.Trim(value, `"`)); err == nil {
					sMaxAge = n
				}
			}
		}
		switch {
		case cacheType.Has(CacheTypeNoStore):
			zero := 0
			lifetime = &zero
		case sMaxAge >= 0:
			lifetime = &sMaxAge
		case maxAge >= 0:
			lifetime = &maxAge
		}
	}

	if exp := h.Get("Expires"); exp != "" {
		cacheType |= CacheTypeExpires
		if lifetime == nil {
			if t, err := http.ParseTime(exp); err == nil {
				secs := int(t.Sub(now).Seconds())
				if secs < 0 {
					secs = 0
				}
				lifetime = &secs
			}
		}
	}

	if h.Get("ETag") != "" {
		cacheType |= CacheTypeETag
	}
	if h.Get("Last-Modified") != "" {
		cacheType |= CacheTypeLastModified
	}

	return cacheType, lifetime
}
