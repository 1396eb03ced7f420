package database

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nao1215/sitecrawler/internal/model"
)

// ErrNotEnoughRuns is returned by CompareLatest when fewer than two runs of
// a site are stored.
var ErrNotEnoughRuns = errors.New("at least two stored runs are required")

// CategoryDelta is the change of one category between two runs.
type CategoryDelta struct {
	Analyzer string         `json:"analyzer"`
	Category model.Category `json:"category"`
	Severity model.Severity `json:"severity"`
	Previous int            `json:"previous"`
	Current  int            `json:"current"`
}

// Delta returns Current - Previous.
func (d CategoryDelta) Delta() int {
	return d.Current - d.Previous
}

// Comparison holds the category differences between two runs of one site.
type Comparison struct {
	Previous RunMetadata     `json:"previous"`
	Current  RunMetadata     `json:"current"`
	Changes  []CategoryDelta `json:"changes"`
}

// Regressions returns the changes whose count increased.
func (c *Comparison) Regressions() []CategoryDelta {
	out := make([]CategoryDelta, 0)
	for _, d := range c.Changes {
		if d.Delta() > 0 {
			out = append(out, d)
		}
	}
	return out
}

// CompareLatest compares the two newest runs of rootURL.
func (cdb *CrawlDB) CompareLatest(ctx context.Context, rootURL string) (*Comparison, error) {
	runs, err := cdb.ListRuns(ctx, rootURL, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, fmt.Errorf("%w: %s has %d", ErrNotEnoughRuns, rootURL, len(runs))
	}
	return cdb.Compare(ctx, runs[1], runs[0])
}

// Compare returns the categories whose counts differ between previous and
// current. Categories only present in one run count as zero in the other.
func (cdb *CrawlDB) Compare(ctx context.Context, previous, current RunMetadata) (*Comparison, error) {
	before, err := cdb.GetFindings(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	after, err := cdb.GetFindings(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	type key struct {
		analyzer string
		category model.Category
		severity model.Severity
	}
	deltas := make(map[key]*CategoryDelta)
	get := func(f FindingCount) *CategoryDelta {
		k := key{f.Analyzer, f.Category, f.Severity}
		d, ok := deltas[k]
		if !ok {
			d = &CategoryDelta{Analyzer: f.Analyzer, Category: f.Category, Severity: f.Severity}
			deltas[k] = d
		}
		return d
	}
	for _, f := range before {
		get(f).Previous = f.Count
	}
	for _, f := range after {
		get(f).Current = f.Count
	}

	cmp := &Comparison{Previous: previous, Current: current}
	for _, d := range deltas {
		if d.Delta() != 0 {
			cmp.Changes = append(cmp.Changes, *d)
		}
	}
	sort.Slice(cmp.Changes, func(i, j int) bool {
		a, b := cmp.Changes[i], cmp.Changes[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Analyzer != b.Analyzer {
			return a.Analyzer < b.Analyzer
		}
		return a.Category < b.Category
	})
	return cmp, nil
}
