// Package pipeline connects the crawler to analysis, aggregation, export
// and persistence.
//
// Every page handed over by the crawler runs through a Pipeline of Steps:
// analyze, export, persist and record. A Runner performs one crawl and
// returns its finalized report; a BatchProcessor runs several independent
// single-page crawls concurrently for list mode.
package pipeline
