package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitecrawler/internal/database"
	"github.com/nao1215/sitecrawler/internal/model"
)

func TestFormatTotals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  database.RunMetadata
		want string
	}{
		{name: "no findings", run: database.RunMetadata{}, want: noFindingsMessage},
		{
			name: "all buckets",
			run:  database.RunMetadata{Totals: model.SeverityTotals{Critical: 1, Warning: 2, Notice: 3, OK: 4}},
			want: "C:1 W:2 N:3",
		},
		{
			name: "cancelled",
			run:  database.RunMetadata{Cancelled: true, Totals: model.SeverityTotals{Warning: 1}},
			want: "W:1 (cancelled)",
		},
		{name: "failed", run: database.RunMetadata{Error: "boom"}, want: noFindingsMessage + " (failed)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatTotals(tt.run); got != tt.want {
				t.Errorf("formatTotals() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteComparison(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cmp := &database.Comparison{
		Previous: database.RunMetadata{ID: "prev", StartedAt: now.Add(-time.Hour)},
		Current:  database.RunMetadata{ID: "cur", StartedAt: now},
		Changes: []database.CategoryDelta{
			{Analyzer: "seo", Category: "missing-title", Severity: model.SeverityCritical, Previous: 1, Current: 3},
			{Analyzer: "security", Category: "missing-hsts", Severity: model.SeverityWarning, Previous: 2, Current: 0},
		},
	}

	var buf bytes.Buffer
	writeComparison(&buf, "https://example.com/", cmp)
	output := buf.String()

	for _, want := range []string{"Comparison for https://example.com/", "prev", "cur", "1 -> 3 (+2)", "2 -> 0 (-2)", "1 category got worse"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	buf.Reset()
	writeComparison(&buf, "https://example.com/", &database.Comparison{})
	if !strings.Contains(buf.String(), "No changes.") {
		t.Errorf("expected no changes message, got:\n%s", buf.String())
	}
}

func TestCompareCmdRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "compare", "--db-dir", t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != exitUsage {
		t.Errorf("exitCode = %d, want %d", exitCode(err), exitUsage)
	}
}

func TestCompareCmdListSitesEmpty(t *testing.T) {
	t.Parallel()

	output, err := execute(t, "compare", "--db-dir", t.TempDir(), "--list-sites")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "No crawled sites") {
		t.Errorf("unexpected output %q", output)
	}
}
