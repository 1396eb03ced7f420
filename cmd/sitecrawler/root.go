package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawler/internal/config"
	"github.com/nao1215/sitecrawler/internal/log"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks errors caused by invalid flags or configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func newUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &usageError{err: err}
}

// exitCode maps the error returned by the root command to the process exit
// status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	return exitFailure
}

// NewRootCmd creates the root command. Run without a subcommand it crawls
// the given seeds.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitecrawler",
		Short: "Crawl a website and analyze its pages",
		Long: `sitecrawler crawls a website starting from one or more seed URLs and analyzes
every page for accessibility, SEO, security and best-practice issues.

A single --url crawls the site recursively. More than one seed (repeated --url
or --url-list) selects list mode: every seed is fetched as an independent
single page with its own report.

The exit status is 0 only when every seed was fetched successfully.`,
		Example: `  # Crawl a site
  sitecrawler --url https://example.com/

  # Crawl two levels deep and print JSON
  sitecrawler --url https://example.com/ --max-depth 2 --json

  # Check a list of pages
  sitecrawler --url-list urls.txt --output report.md --markdown

  # Export every page as markdown
  sitecrawler --url https://example.com/docs/ --markdown-export-dir ./export`,
		Version:       getVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			slog.SetDefault(loggerFromFlags(cmd))
			return nil
		},
		RunE: runCrawlCmd,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(), "Directory of the run history database")

	addCrawlFlags(cmd)

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newUsageError(err)
	})

	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewExportsCmd())

	return cmd
}

// loggerFromFlags builds the secure logger selected by --verbose and
// --log-json. It writes to the command's error stream.
func loggerFromFlags(cmd *cobra.Command) *slog.Logger {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose = false
	}
	jsonLogs, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		jsonLogs = false
	}
	return log.New(cmd.ErrOrStderr(), verbose, jsonLogs)
}

// Execute runs the root command and exits with its status.
func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
