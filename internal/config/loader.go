package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".sitecrawler"

// XDGConfigFileName is the file name looked up in the XDG config directory.
const XDGConfigFileName = "config.yaml"

var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrConfigExists is returned by WriteTemplate when it would overwrite a file.
	ErrConfigExists = errors.New("configuration file already exists")

	// ErrEmptyURLList is returned when a URL list file holds no URL.
	ErrEmptyURLList = errors.New("url list is empty")
)

// LoadConfigFile loads site configurations from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .sitecrawler in the current directory
// 3. Look for .sitecrawler in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), XDGConfigFileName))

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// ReadURLList reads seed URLs from a file, one per line. Blank lines and
// lines starting with # are skipped.
func ReadURLList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyURLList, path)
	}
	return urls, nil
}

// Template is the commented configuration written by `sitecrawler init`.
const Template = `# sitecrawler configuration
#
# Settings under "defaults" apply to every crawled site. Entries under
# "sites" are keyed by host name and override the defaults.

defaults:
  # Extra request headers.
  # headers:
  #   Accept-Language: en
  # Paths matching these glob patterns are not crawled.
  ignorePatterns:
    - "/logout*"
  # Only paths matching these patterns are crawled when set.
  # followPatterns:
  #   - "/docs/*"
  # CSS selectors removed from the markdown export.
  # excludeSelectors:
  #   - "nav"
  #   - ".cookie-banner"

sites:
  # www.example.com:
  #   cookie: "session=abc123"
  #   maxDepth: 3
  #   headers:
  #     Authorization: "Bearer ..."
`

// WriteTemplate writes Template to path. An existing file is only replaced
// when force is set.
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Template), 0600); err != nil {
		return fmt.Errorf("write config template: %w", err)
	}
	return nil
}
