package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitecrawler/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "sitecrawler.db"

// ErrRunNotFound is returned when a requested crawl run is not stored.
var ErrRunNotFound = errors.New("crawl run not found")

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CrawlDB provides SQLite-based storage for crawl runs and their pages.
// One database holds the history of every crawled site.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the
	// writer while a crawl is in progress.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. Pages are saved from every fetch
	// worker, so all access goes through a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		root_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		cancelled INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		pages INTEGER NOT NULL DEFAULT 0,
		critical INTEGER NOT NULL DEFAULT 0,
		warning INTEGER NOT NULL DEFAULT 0,
		notice INTEGER NOT NULL DEFAULT 0,
		ok INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_root ON crawl_runs(root_url, started_at);

	-- Visited URLs are written while the crawl runs
	CREATE TABLE IF NOT EXISTS visited_urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		uq_id TEXT NOT NULL,
		url TEXT NOT NULL,
		source TEXT,
		depth INTEGER,
		status_code INTEGER,
		content_type TEXT,
		request_time REAL,
		size INTEGER,
		is_external INTEGER NOT NULL DEFAULT 0,
		headers TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, uq_id)
	);

	CREATE INDEX IF NOT EXISTS idx_visited_run ON visited_urls(run_id);
	CREATE INDEX IF NOT EXISTS idx_visited_url ON visited_urls(url);

	-- Findings hold per-category counts of a finished run
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		analyzer TEXT NOT NULL,
		category TEXT NOT NULL,
		severity INTEGER NOT NULL,
		count INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		UNIQUE(run_id, analyzer, category, severity)
	);

	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// PageRecord is a stored visited URL.
type PageRecord struct {
	RunID       string
	UqID        string
	URL         string
	Source      string
	Depth       int
	StatusCode  int
	ContentType string
	RequestTime float64
	Size        int64
	IsExternal  bool
	Headers     map[string][]string
	Timestamp   time.Time
}

// SavePage inserts or updates the record of one visited URL of a run.
func (cdb *CrawlDB) SavePage(ctx context.Context, runID string, v *model.VisitedURL) error {
	if v == nil {
		return errors.New("nil page")
	}

	headersJSON, err := json.Marshal(v.Headers)
	if err != nil {
		return fmt.Errorf("failed to serialize headers: %w", err)
	}

	query := `
	INSERT INTO visited_urls (run_id, uq_id, url, source, depth, status_code, content_type, request_time, size, is_external, headers)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, uq_id) DO UPDATE SET
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		request_time = excluded.request_time,
		size = excluded.size,
		headers = excluded.headers,
		timestamp = CURRENT_TIMESTAMP
	`

	_, err = cdb.db.ExecContext(ctx, query,
		runID,
		v.UqID,
		v.URL,
		v.Source.String(),
		v.Depth,
		v.StatusCode,
		v.ContentType.String(),
		v.RequestTime,
		v.Size,
		v.IsExternal,
		string(headersJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save page %s: %w", v.URL, err)
	}
	return nil
}

// GetPages returns the visited URLs stored for a run in insertion order.
func (cdb *CrawlDB) GetPages(ctx context.Context, runID string) ([]PageRecord, error) {
	query := `
	SELECT run_id, uq_id, url, source, depth, status_code, content_type, request_time, size, is_external, headers, timestamp
	FROM visited_urls
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		var p PageRecord
		var headersJSON sql.NullString
		var timestamp string

		if err := rows.Scan(
			&p.RunID,
			&p.UqID,
			&p.URL,
			&p.Source,
			&p.Depth,
			&p.StatusCode,
			&p.ContentType,
			&p.RequestTime,
			&p.Size,
			&p.IsExternal,
			&headersJSON,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}

		p.Timestamp = parseTimestamp(timestamp)
		if headersJSON.Valid && headersJSON.String != "" && headersJSON.String != "null" {
			if err := json.Unmarshal([]byte(headersJSON.String), &p.Headers); err != nil {
				return nil, fmt.Errorf("failed to parse headers: %w", err)
			}
		}
		pages = append(pages, p)
	}

	return pages, rows.Err()
}

// SaveRun stores a finished crawl report together with its per-category
// finding counts. Saving the same run again replaces the earlier record.
func (cdb *CrawlDB) SaveRun(ctx context.Context, report *model.CrawlReport) error {
	if report == nil || report.ID == "" {
		return errors.New("report without id")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	summary := model.NewSummary(report)

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO crawl_runs (id, root_url, started_at, finished_at, cancelled, error, pages, critical, warning, notice, ok, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		cancelled = excluded.cancelled,
		error = excluded.error,
		pages = excluded.pages,
		critical = excluded.critical,
		warning = excluded.warning,
		notice = excluded.notice,
		ok = excluded.ok,
		report_json = excluded.report_json
	`
	if _, err := tx.ExecContext(ctx, query,
		report.ID,
		report.RootURL,
		formatTime(report.StartedAt),
		formatTime(report.FinishedAt),
		report.Cancelled,
		report.Error,
		len(report.PageOrder),
		report.Totals.Critical,
		report.Totals.Warning,
		report.Totals.Notice,
		report.Totals.OK,
		string(reportJSON),
	); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM findings WHERE run_id = ?", report.ID); err != nil {
		return fmt.Errorf("failed to clear findings: %w", err)
	}
	for _, c := range summary.Categories {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO findings (run_id, analyzer, category, severity, count, pages) VALUES (?, ?, ?, ?, ?, ?)",
			report.ID, c.Analyzer, string(c.Category), int(c.Severity), c.Count, c.Pages,
		); err != nil {
			return fmt.Errorf("failed to save finding %s: %w", c.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a stored report by run id.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*model.CrawlReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, "SELECT report_json FROM crawl_runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// RunMetadata summarizes a stored run without loading the full report.
type RunMetadata struct {
	ID         string               `json:"id"`
	RootURL    string               `json:"root_url"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Cancelled  bool                 `json:"cancelled"`
	Error      string               `json:"error,omitempty"`
	Pages      int                  `json:"pages"`
	Totals     model.SeverityTotals `json:"totals"`
}

// ListRuns returns the most recent runs, newest first. An empty rootURL
// lists runs of every site. A limit <= 0 returns all runs.
func (cdb *CrawlDB) ListRuns(ctx context.Context, rootURL string, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, root_url, started_at, finished_at, cancelled, error, pages, critical, warning, notice, ok
	FROM crawl_runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)
	if rootURL != "" {
		query += " AND root_url = ?"
		args = append(args, rootURL)
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunMetadata
	for rows.Next() {
		var m RunMetadata
		var started string
		var finished, runErr sql.NullString

		if err := rows.Scan(
			&m.ID,
			&m.RootURL,
			&started,
			&finished,
			&m.Cancelled,
			&runErr,
			&m.Pages,
			&m.Totals.Critical,
			&m.Totals.Warning,
			&m.Totals.Notice,
			&m.Totals.OK,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		m.StartedAt = parseTimestamp(started)
		m.FinishedAt = parseTimestamp(finished.String)
		m.Error = runErr.String
		runs = append(runs, m)
	}

	return runs, rows.Err()
}

// ListRootURLs returns every root URL with at least one stored run.
func (cdb *CrawlDB) ListRootURLs(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, "SELECT DISTINCT root_url FROM crawl_runs ORDER BY root_url")
	if err != nil {
		return nil, fmt.Errorf("failed to list root urls: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root url: %w", err)
		}
		roots = append(roots, root)
	}
	return roots, rows.Err()
}

// FindingCount is the stored count of one category in one run.
type FindingCount struct {
	Analyzer string
	Category model.Category
	Severity model.Severity
	Count    int
	Pages    int
}

// GetFindings returns the finding counts of a run ordered by analyzer and
// category.
func (cdb *CrawlDB) GetFindings(ctx context.Context, runID string) ([]FindingCount, error) {
	query := `
	SELECT analyzer, category, severity, count, pages
	FROM findings
	WHERE run_id = ?
	ORDER BY analyzer, category, severity
	`

	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []FindingCount
	for rows.Next() {
		var f FindingCount
		var category string
		var severity int
		if err := rows.Scan(&f.Analyzer, &category, &severity, &f.Count, &f.Pages); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Category = model.Category(category)
		f.Severity = model.Severity(severity)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
