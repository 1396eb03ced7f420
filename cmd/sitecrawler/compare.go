package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawler/internal/crawler"
	"github.com/nao1215/sitecrawler/internal/database"
)

// errRegression is returned by compare --fail-on-regression when a category
// count increased.
var errRegression = errors.New("findings increased since the previous run")

const noFindingsMessage = "No findings"

// NewCompareCmd creates the compare command.
// This command compares the category counts of stored runs.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [url]",
		Short: "Compare the two latest stored runs of a site",
		Long: `Compare shows how the finding counts of a site changed between its two most
recent crawls stored in the run history database.

Every crawl is stored unless --no-db is given. Runs are matched by the
normalized root URL, so "https://Example.com" and "https://example.com/" are
the same site.

Examples:
  # Compare the latest two runs
  sitecrawler compare https://example.com/

  # List the stored runs of a site
  sitecrawler compare --list https://example.com/

  # List every site in the database
  sitecrawler compare --list-sites

  # Fail when a category got worse (for CI)
  sitecrawler compare --fail-on-regression https://example.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List the stored runs of the site")
	cmd.Flags().BoolP("list-sites", "L", false,
		"List every site with stored runs")
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison as JSON")
	cmd.Flags().Bool("fail-on-regression", false,
		"Exit with status 1 when a finding count increased")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	listSites, err := cmd.Flags().GetBool("list-sites")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var rootURL string
	if !listSites {
		if len(args) == 0 {
			return newUsageError(errors.New("a site URL is required (use --list-sites to see stored sites)"))
		}
		rootURL, _, err = crawler.NewNormalizer(false).Normalize(args[0], nil)
		if err != nil {
			return newUsageError(fmt.Errorf("invalid URL: %w", err))
		}
	}

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if listSites {
		return listStoredSites(ctx, db, out)
	}

	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if list {
		return listStoredRuns(ctx, db, out, rootURL)
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	failOnRegression, err := cmd.Flags().GetBool("fail-on-regression")
	if err != nil {
		return err
	}

	cmp, err := db.CompareLatest(ctx, rootURL)
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(cmp); err != nil {
			return err
		}
	} else {
		writeComparison(out, rootURL, cmp)
	}

	if failOnRegression && len(cmp.Regressions()) > 0 {
		return fmt.Errorf("%w: %d categories", errRegression, len(cmp.Regressions()))
	}
	return nil
}

// listStoredSites prints every root URL with stored runs.
func listStoredSites(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	roots, err := db.ListRootURLs(ctx)
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		fmt.Fprintln(out, "No crawled sites found in the database.")
		return nil
	}

	fmt.Fprintf(out, "Crawled sites (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	fmt.Fprintln(out, "\nUse 'sitecrawler compare --list <url>' to see the runs of a site.")
	return nil
}

// listStoredRuns prints the runs of one site, newest first.
func listStoredRuns(ctx context.Context, db *database.CrawlDB, out io.Writer, rootURL string) error {
	runs, err := db.ListRuns(ctx, rootURL, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs found for %s\n", rootURL)
		return nil
	}

	fmt.Fprintf(out, "Runs of %s (%d):\n\n", rootURL, len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %6s  %s\n", "ID", "Started", "Pages", "Findings")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 80))
	for _, run := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %6d  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Pages,
			formatTotals(run),
		)
	}
	return nil
}

// formatTotals formats the severity totals of a run.
func formatTotals(run database.RunMetadata) string {
	var parts []string
	if run.Totals.Critical > 0 {
		parts = append(parts, fmt.Sprintf("C:%d", run.Totals.Critical))
	}
	if run.Totals.Warning > 0 {
		parts = append(parts, fmt.Sprintf("W:%d", run.Totals.Warning))
	}
	if run.Totals.Notice > 0 {
		parts = append(parts, fmt.Sprintf("N:%d", run.Totals.Notice))
	}

	s := noFindingsMessage
	if len(parts) > 0 {
		s = strings.Join(parts, " ")
	}
	switch {
	case run.Cancelled:
		s += " (cancelled)"
	case run.Error != "":
		s += " (failed)"
	}
	return s
}

// writeComparison prints a comparison as plain text.
func writeComparison(out io.Writer, rootURL string, cmp *database.Comparison) {
	fmt.Fprintf(out, "Comparison for %s\n\n", rootURL)
	fmt.Fprintf(out, "  Previous: %s  %s  %s\n", cmp.Previous.ID,
		cmp.Previous.StartedAt.Local().Format("2006-01-02 15:04:05"), formatTotals(cmp.Previous))
	fmt.Fprintf(out, "  Current:  %s  %s  %s\n\n", cmp.Current.ID,
		cmp.Current.StartedAt.Local().Format("2006-01-02 15:04:05"), formatTotals(cmp.Current))

	if len(cmp.Changes) == 0 {
		fmt.Fprintln(out, "No changes.")
		return
	}

	fmt.Fprintf(out, "Changes (%d):\n", len(cmp.Changes))
	for _, d := range cmp.Changes {
		fmt.Fprintf(out, "  %-8s  %-14s  %-40s  %d -> %d (%s)\n",
			d.Severity, d.Analyzer, d.Category, d.Previous, d.Current, signed(d.Delta()))
	}

	if n := len(cmp.Regressions()); n > 0 {
		fmt.Fprintf(out, "\n%d %s got worse.\n", n, plural(n, "category", "categories"))
	}
}

func signed(n int) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

