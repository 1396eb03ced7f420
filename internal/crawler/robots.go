package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const (
	// maxRobotsSize caps the robots.txt body.
	maxRobotsSize = 512 * 1024

	// maxRobotsRedirects is the number of redirects followed for robots.txt.
	maxRobotsRedirects = 5
)

// RobotsChecker evaluates robots.txt rules, fetching each host's file at
// most once per crawl. Concurrent lookups for the same host share one
// request. Any error while fetching or parsing allows the URL.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a checker that fetches with a copy of client.
// The copy follows up to five redirects. Every robots.txt request is bounded
// by timeout; a non-positive timeout selects DefaultTimeout.
func NewRobotsChecker(client *http.Client, userAgent string, timeout time.Duration, logger *slog.Logger) *RobotsChecker {
	c := http.Client{}
	if client != nil {
		c = *client
	}
	c.CheckRedirect = limitRobotsRedirects
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsChecker{
		client:    &c,
		userAgent: userAgent,
		timeout:   timeout,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

func limitRobotsRedirects(_ *http.Request, via []*http.Request) error {
	if len(via) >= maxRobotsRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRobotsRedirects)
	}
	return nil
}

// Allowed reports whether target may be fetched by the configured agent.
func (r *RobotsChecker) Allowed(ctx context.Context, target *url.URL) bool {
	if r == nil || target == nil || !target.IsAbs() {
		return true
	}

	data := r.rules(ctx, target)
	if data == nil {
		return true
	}

	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

// rules returns the cached rules for the target's origin, fetching them on
// first use. A nil result means everything is allowed.
func (r *RobotsChecker) rules(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	key := strings.ToLower(target.Scheme + "://" + target.Host)

	r.mu.RLock()
	data, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return data
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		data, err := r.fetch(ctx, key)
		if err != nil {
			r.logger.Debug("ignoring robots.txt",
				"origin", key,
				"error", err,
			)
			data = nil
		}
		r.mu.Lock()
		r.cache[key] = data
		r.mu.Unlock()
		return data, nil
	})

	data, _ = v.(*robotstxt.RobotsData)
	return data
}

func (r *RobotsChecker) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
