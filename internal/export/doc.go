// Package export writes crawled pages as Markdown files and serves them
// back through opaque download tokens.
//
// Each page is written to a path derived from its URL below the export
// root. Optionally all pages are combined into a single file. Tokens are
// unpadded URL-safe base64 of the path relative to the root and are
// resolved only to regular files inside it.
package export
