package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// The CLI reports them as usage errors.
var (
	// ErrNoTarget is returned when neither --url nor --url-list provides a seed.
	ErrNoTarget = errors.New("no target specified: provide --url or --url-list")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidBatchSize is returned when the list-mode batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxDepth is returned for a negative depth; use 0 for unlimited.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned for a negative page limit; use 0 for unlimited.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidRateLimit is returned for a negative request rate; use 0 to disable.
	ErrInvalidRateLimit = errors.New("invalid max requests per second: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidOriginPolicy is returned for an unknown --origin-policy.
	ErrInvalidOriginPolicy = errors.New("invalid origin policy: use scheme-host, host or registrable-domain")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingColorFlags is returned when both --no-color and
	// --force-color are specified.
	ErrConflictingColorFlags = errors.New("conflicting color flags: --no-color and --force-color cannot be used together")

	// ErrSingleFileWithoutExportDir is returned when a combined markdown file
	// is requested without an export directory.
	ErrSingleFileWithoutExportDir = errors.New("--markdown-export-single-file requires --markdown-export-dir")
)
