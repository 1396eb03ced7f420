package model

// Severity is the bucket an analysis finding is reported in.
//
// The order matters: higher values are more severe, which lets writers sort
// findings and lets the exit status logic compare against a threshold.
type Severity int

const (
	// SeverityOK marks a check that passed. OK entries carry no details.
	SeverityOK Severity = iota

	// SeverityNotice marks an informational observation that needs no action.
	SeverityNotice

	// SeverityWarning marks an issue that degrades quality but does not
	// block users or crawlers.
	SeverityWarning

	// SeverityCritical marks an issue that blocks users (for example an
	// unlabeled form control for screen reader users) or exposes visitors.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// SeverityTotals counts summary lines per severity bucket.
type SeverityTotals struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	OK       int `json:"ok"`
	Notice   int `json:"notice"`
}

// Add merges the counts of another SeverityTotals into t.
func (t *SeverityTotals) Add(other SeverityTotals) {
	t.Critical += other.Critical
	t.Warning += other.Warning
	t.OK += other.OK
	t.Notice += other.Notice
}

// Total returns the number of critical and warning lines, which are the
// lines that require action.
func (t SeverityTotals) Total() int {
	return t.Critical + t.Warning
}
