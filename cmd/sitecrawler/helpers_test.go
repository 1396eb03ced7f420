package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// newTestSite serves a small site with one broken link.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	pages := map[string]string{
		"/": `<!DOCTYPE html><html lang="en"><head><title>Home of the test site</title></head>
<body><h1>Home</h1><p>Welcome.</p><a href="/about">About</a> <a href="/missing">Missing</a></body></html>`,
		"/about": `<!DOCTYPE html><html lang="en"><head><title>About the test site</title></head>
<body><h1>About</h1><p>We test crawlers.</p><a href="/">Home</a></body></html>`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// emptyConfig writes a configuration file without site settings so that a
// user's own .sitecrawler does not leak into the tests.
func emptyConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("defaults: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// crawlArgs returns the flags every crawl test needs followed by extra.
func crawlArgs(t *testing.T, dbDir string, extra ...string) []string {
	t.Helper()

	args := []string{
		"-c", emptyConfig(t),
		"--db-dir", dbDir,
		"--ignore-robots-txt",
		"--max-reqs-per-sec", "0",
		"--hide-progress-bar",
		"--no-color",
	}
	return append(args, extra...)
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}
