// Package analysis runs page analyzers and collects their findings.
//
// An Analyzer is a stateless check over one fetched page. The Registry is
// the closed list of analyzers, built explicitly by NewRegistry in reporting
// order: accessibility, seo, security, best-practices and image-metadata.
//
// Every check maps to one category (see model.Category) and therefore to
// one severity. A check that finds nothing contributes no critical or
// warning line; summary lines are generated from the number of details, so
// their counts always match.
//
// Analyzer failures are isolated. Registry.Run replaces the result of a
// failing or panicking analyzer with an empty one, records a diagnostic,
// and continues with the next analyzer.
package analysis
