package export

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one exported Markdown file available for download.
type File struct {
	Name     string `json:"name"`
	Relative string `json:"relative"`
	Token    string `json:"token"`
	Size     int64  `json:"size"`
}

// EncodeToken returns the download token for a path relative to the export
// root: unpadded URL-safe base64 of the slash-separated path.
func EncodeToken(rel string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(filepath.ToSlash(rel)))
}

// ResolveToken decodes token and returns the absolute path of the regular
// file it names below root. Tokens that decode to a path outside root, or
// to something that is not a regular file, are rejected.
func ResolveToken(root, token string) (string, error) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" {
		return "", ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	rel := strings.TrimLeft(string(raw), "/")
	if rel == "" || strings.ContainsRune(rel, 0) {
		return "", ErrInvalidToken
	}

	base, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve export root: %w", err)
	}
	full, err := filepath.EvalSymlinks(filepath.Join(base, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %w", ErrInvalidToken, fs.ErrNotExist)
		}
		return "", fmt.Errorf("resolve token path: %w", err)
	}
	if !within(base, full) {
		return "", ErrPathEscapesRoot
	}

	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: not a file", ErrInvalidToken)
	}
	return full, nil
}

// List returns the Markdown files below dir, sorted by relative path.
// Relative paths and tokens are computed against root so that tokens stay
// valid across export runs sharing one root.
func List(root, dir string) ([]File, error) {
	base, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve export root: %w", err)
	}
	if dir == "" {
		dir = base
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(base, dir)
	}
	if !within(base, filepath.Clean(dir)) {
		return nil, ErrPathEscapesRoot
	}

	files := make([]File, 0)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".md") || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, File{
			Name:     d.Name(),
			Relative: rel,
			Token:    EncodeToken(rel),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Relative < files[j].Relative
	})
	return files, nil
}
