package crawler

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/nao1215/sitecrawler/internal/model"
)

// Default fetch settings.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultUserAgent   = "sitecrawler/1.0 (+https://github.com/nao1215/sitecrawler)"
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// Fetcher performs a single GET request and turns the outcome into a
// VisitedURL. It never follows redirects itself: a 3xx response is
// recorded as a redirect page and its Location is offered back to the
// frontier by the spider.
type Fetcher struct {
	client      *http.Client
	timeout     time.Duration
	userAgent   string
	maxBodySize int64
	headers     map[string]string
	cookie      string
	logger      *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout sets the per-request timeout, covering connect, headers and body.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize caps the decoded body length.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithHeaders adds extra request headers.
func WithHeaders(headers map[string]string) FetcherOption {
	return func(f *Fetcher) {
		for k, v := range headers {
			f.headers[k] = v
		}
	}
}

// WithCookie sends a Cookie header with every request.
func WithCookie(cookie string) FetcherOption {
	return func(f *Fetcher) {
		f.cookie = cookie
	}
}

// WithHTTPClient uses client for requests. Its redirect policy is replaced
// so that redirects are observed rather than followed.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client == nil {
			return
		}
		c := *client
		c.CheckRedirect = noFollow
		f.client = &c
	}
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func noFollow(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// NewFetcher creates a Fetcher with defaults suitable for public websites.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	f := &Fetcher{
		client: &http.Client{
			Transport:     transport,
			CheckRedirect: noFollow,
		},
		timeout:     DefaultTimeout,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		headers:     make(map[string]string),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Client returns the underlying HTTP client, for robots.txt and sitemap requests.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Timeout returns the per-request timeout.
func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// UserAgent returns the configured User-Agent.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// FetchResult is the outcome of one fetch: the page record and the decoded body.
type FetchResult struct {
	Visited *model.VisitedURL
	Body    []byte
}

// Fetch retrieves found.URL. Failures are recorded on the returned
// VisitedURL with a negative status code; Fetch itself never fails.
func (f *Fetcher) Fetch(ctx context.Context, found model.FoundURL) *FetchResult {
	start := time.Now()
	visited := &model.VisitedURL{
		UqID:       found.UqID,
		SourceUqID: found.SourceUqID,
		Source:     found.Source,
		URL:        found.URL,
		Depth:      found.Depth,
		Extras:     make(map[string]string),
	}
	result := &FetchResult{Visited: visited}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, found.URL, nil)
	if err != nil {
		f.fail(visited, start, &TransportError{URL: found.URL, Kind: ErrorKindRequest, Err: err})
		return result
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		f.fail(visited, start, classifyTransportError(found.URL, err))
		return result
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.fail(visited, start, classifyTransportError(found.URL, err))
		return result
	}

	encoding := resp.Header.Get("Content-Encoding")
	body, err := decodeBody(encoding, raw, f.maxBodySize)
	if err != nil {
		f.logger.Debug("failed to decode response body",
			"url", found.URL,
			"encoding", encoding,
			"error", err,
		)
		visited.Extras[model.ExtraError] = err.Error()
		body = raw
	}

	visited.StatusCode = resp.StatusCode
	visited.Headers = resp.Header
	visited.ContentTypeHeader = resp.Header.Get("Content-Type")
	visited.ContentEncoding = encoding
	visited.Size = int64(len(body))
	visited.CacheType, visited.CacheLifetime = model.ParseCacheInfo(resp.Header, time.Now())

	if isRedirect(resp.StatusCode) {
		if loc, err := resp.Location(); err == nil {
			visited.ContentType = model.ContentTypeRedirect
			visited.Extras[model.ExtraLocation] = loc.String()
		}
	}
	if visited.ContentType != model.ContentTypeRedirect {
		visited.ContentType = model.ClassifyContentType(visited.ContentTypeHeader, req.URL.Path, body)
	}

	visited.RequestTime = time.Since(start).Seconds()
	visited.FetchedAt = time.Now()
	result.Body = body

	return result
}

func (f *Fetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
}

// fail records a transport failure on visited.
func (f *Fetcher) fail(visited *model.VisitedURL, start time.Time, terr *TransportError) {
	visited.StatusCode = statusForKind(terr.Kind)
	visited.Extras[model.ExtraError] = terr.Err.Error()
	visited.Extras[model.ExtraErrorKind] = terr.Kind
	visited.RequestTime = time.Since(start).Seconds()
	visited.FetchedAt = time.Now()

	f.logger.Debug("fetch failed",
		"url", visited.URL,
		"kind", terr.Kind,
		"error", terr.Err,
	)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// classifyTransportError maps a client error to an error kind.
func classifyTransportError(rawURL string, err error) *TransportError {
	terr := &TransportError{URL: rawURL, Kind: ErrorKindRequest, Err: err}

	var dnsErr *net.DNSError
	var netErr net.Error
	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	var opErr *net.OpError

	switch {
	case errors.As(err, &dnsErr):
		terr.Kind = ErrorKindDNS
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		terr.Kind = ErrorKindTimeout
	case errors.As(err, &certErr), errors.As(err, &recordErr), errors.As(err, &unknownAuthority),
		errors.As(err, &hostnameErr), errors.As(err, &invalidCert):
		terr.Kind = ErrorKindTLS
	case errors.As(err, &opErr):
		terr.Kind = ErrorKindConnect
	}

	return terr
}

// statusForKind returns the VisitedURL status sentinel for an error kind.
func statusForKind(kind string) int {
	switch kind {
	case ErrorKindTimeout:
		return model.StatusTimeout
	case ErrorKindDNS, ErrorKindTLS, ErrorKindConnect:
		return model.StatusConnectionError
	default:
		return model.StatusRequestError
	}
}

// decodeBody undoes Content-Encoding. The decoded output is capped at limit.
func decodeBody(encoding string, raw []byte, limit int64) ([]byte, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		// Servers send both zlib wrapped and raw deflate streams.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			reader = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(raw))
			defer fr.Close()
			reader = fr
		}
	case "br":
		reader = brotli.NewReader(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, encoding)
	}

	body, err := io.ReadAll(io.LimitReader(reader, limit))
	if err != nil {
		return nil, fmt.Errorf("read decoded body: %w", err)
	}
	return body, nil
}
