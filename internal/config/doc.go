// Package config provides the sitecrawler configuration: crawl, export,
// report and persistence options, their defaults and validation, and the
// optional YAML file with per-site settings.
package config
