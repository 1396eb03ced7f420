package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitecrawler"

	// DefaultWorkers is the size of the fetch worker pool.
	DefaultWorkers = 3

	// DefaultTimeout bounds every single request.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxDepth of 0 crawls without a depth limit.
	DefaultMaxDepth = 0

	// DefaultMaxPages caps the number of URLs accepted into the frontier so
	// that generated URL spaces terminate.
	DefaultMaxPages = 10000

	// DefaultBatchSize is the number of concurrent crawls in list mode.
	DefaultBatchSize = 4

	// DefaultMaxReqsPerSec limits requests per second per host.
	DefaultMaxReqsPerSec = 10.0

	// DefaultUserAgent identifies sitecrawler in HTTP requests.
	DefaultUserAgent = "sitecrawler/1.0 (+https://github.com/nao1215/sitecrawler)"

	// DefaultMaxBodySize limits the response body size read per URL.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultOriginPolicy treats scheme, host and port as the origin.
	DefaultOriginPolicy = "scheme-host"
)

// originPolicies are the accepted --origin-policy values.
var originPolicies = map[string]bool{
	"":                   true,
	"scheme-host":        true,
	"host":               true,
	"registrable-domain": true,
	"domain":             true,
}

// Config holds all configuration options for sitecrawler.
// It is populated from CLI flags, completed from the config file and then
// passed down explicitly.
type Config struct {
	// URLs are the seed URLs. More than one seed selects list mode, where
	// every seed is crawled as an independent single page.
	URLs []string

	// URLListFile is a file with one seed URL per line (list mode).
	URLListFile string

	// MaxDepth limits the hop count from the seed. 0 means unlimited.
	MaxDepth int

	// MaxPages limits how many URLs are accepted into the frontier.
	// 0 means unlimited.
	MaxPages int

	// SinglePage fetches the seeds only.
	SinglePage bool

	// Workers is the number of concurrent fetch workers per crawl.
	Workers int

	// BatchSize is the number of concurrent crawls in list mode.
	BatchSize int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxReqsPerSec limits requests per second per host. 0 disables limiting.
	MaxReqsPerSec float64

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// RemoveQueryParams drops query strings during URL normalization.
	RemoveQueryParams bool

	// OriginPolicy selects how external URLs are told apart:
	// scheme-host, host or registrable-domain.
	OriginPolicy string

	// IgnoreRobotsTxt disables robots.txt checks.
	IgnoreRobotsTxt bool

	// Sitemap seeds the crawl from the sitemap of the root origin.
	Sitemap bool

	// Resource types not to follow. Anchors are always followed.
	DisableImages     bool
	DisableStyles     bool
	DisableJavascript bool
	DisableMedia      bool
	DisableFrames     bool

	// AnalyzerFilterRegex keeps only analyzers whose name matches.
	AnalyzerFilterRegex string

	// MarkdownExportDir enables the per-page markdown export.
	MarkdownExportDir string

	// MarkdownExportSingleFile additionally combines the export into one
	// file. A relative path is placed in the export directory.
	MarkdownExportSingleFile string

	MarkdownMoveBeforeH1     bool
	MarkdownDisableImages    bool
	MarkdownDisableFiles     bool
	MarkdownExcludeSelectors []string

	// MarkdownReplaceContent holds "search -> replace" rules.
	MarkdownReplaceContent []string

	// JSONReport and MarkdownReport select the report format. They are
	// mutually exclusive; text is the default.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	NoColor         bool
	ForceColor      bool
	HideProgressBar bool

	// MetricsAddr serves Prometheus metrics while crawling when set.
	MetricsAddr string

	// NoDB disables the run history.
	NoDB bool

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/sitecrawler on Linux).
	DBDir string

	// ConfigFilePath is the path to the configuration file.
	// If empty, .sitecrawler is searched in the current directory, the
	// home directory and the XDG config directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON writes logs as JSON instead of text.
	LogJSON bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxDepth:      DefaultMaxDepth,
		MaxPages:      DefaultMaxPages,
		Workers:       DefaultWorkers,
		BatchSize:     DefaultBatchSize,
		Timeout:       DefaultTimeout,
		MaxReqsPerSec: DefaultMaxReqsPerSec,
		MaxBodySize:   DefaultMaxBodySize,
		UserAgent:     DefaultUserAgent,
		OriginPolicy:  DefaultOriginPolicy,
		DBDir:         XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for sitecrawler.
// On Linux: ~/.local/share/sitecrawler
// On macOS: ~/Library/Application Support/sitecrawler
// On Windows: %LOCALAPPDATA%\sitecrawler
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitecrawler.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for sitecrawler.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// IsListMode reports whether the seeds are crawled as independent single
// pages.
func (c *Config) IsListMode() bool {
	return len(c.URLs) > 1 || c.URLListFile != ""
}

// ReportFormat returns the selected report format name.
func (c *Config) ReportFormat() string {
	switch {
	case c.JSONReport:
		return "json"
	case c.MarkdownReport:
		return "markdown"
	default:
		return "text"
	}
}

// SaveToDB reports whether runs are stored in the database.
func (c *Config) SaveToDB() bool {
	return !c.NoDB && c.DBDir != ""
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.URLs) == 0 && c.URLListFile == "" {
		return ErrNoTarget
	}
	for _, u := range c.URLs {
		if strings.TrimSpace(u) == "" {
			return ErrNoTarget
		}
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxReqsPerSec < 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if !originPolicies[strings.ToLower(c.OriginPolicy)] {
		return ErrInvalidOriginPolicy
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.NoColor && c.ForceColor {
		return ErrConflictingColorFlags
	}
	if c.MarkdownExportSingleFile != "" && c.MarkdownExportDir == "" {
		return ErrSingleFileWithoutExportDir
	}

	return nil
}
