package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestEncodeToken(t *testing.T) {
	t.Parallel()

	got := EncodeToken("run/index.md")
	if got != "cnVuL2luZGV4Lm1k" {
		t.Errorf("EncodeToken() = %q", got)
	}
	for _, c := range got {
		if c == '=' || c == '+' || c == '/' {
			t.Fatalf("token %q is not unpadded URL-safe base64", got)
		}
	}
}

func TestResolveToken(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "run", "index.md"), "# hi")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o750); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(t.TempDir(), "secret.md")
	writeFile(t, outside, "secret")

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		got, err := ResolveToken(root, EncodeToken("run/index.md"))
		if err != nil {
			t.Fatalf("ResolveToken() error = %v", err)
		}
		want, _ := filepath.EvalSymlinks(filepath.Join(root, "run", "index.md"))
		if got != want {
			t.Errorf("ResolveToken() = %q, want %q", got, want)
		}
	})

	t.Run("padded and leading slash", func(t *testing.T) {
		t.Parallel()

		if _, err := ResolveToken(root, EncodeToken("/run/index.md")+"=="); err != nil {
			t.Errorf("ResolveToken() error = %v", err)
		}
	})

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: ErrInvalidToken},
		{name: "not base64", token: "!!!", wantErr: ErrInvalidToken},
		{name: "missing file", token: EncodeToken("run/nope.md"), wantErr: ErrInvalidToken},
		{name: "directory", token: EncodeToken("empty"), wantErr: ErrInvalidToken},
		{name: "traversal", token: EncodeToken("../" + filepath.Base(filepath.Dir(outside)) + "/secret.md"), wantErr: ErrPathEscapesRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ResolveToken(root, tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ResolveToken(%q) error = %v, want %v", tt.token, err, tt.wantErr)
			}
		})
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "run", "b.md"), "b")
	writeFile(t, filepath.Join(root, "run", "a", "index.md"), "a")
	writeFile(t, filepath.Join(root, "run", "notes.txt"), "skip")
	writeFile(t, filepath.Join(root, "other", "c.md"), "c")

	files, err := List(root, "run")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"run/a/index.md", "run/b.md"}
	if len(files) != len(want) {
		t.Fatalf("List() returned %d files, want %d: %+v", len(files), len(want), files)
	}
	for i, f := range files {
		if f.Relative != want[i] {
			t.Errorf("files[%d].Relative = %q, want %q", i, f.Relative, want[i])
		}
		if f.Token != EncodeToken(f.Relative) {
			t.Errorf("files[%d].Token mismatch", i)
		}
		if _, err := ResolveToken(root, f.Token); err != nil {
			t.Errorf("token of %s does not resolve: %v", f.Relative, err)
		}
	}
	if files[1].Name != "b.md" || files[1].Size != 1 {
		t.Errorf("files[1] = %+v", files[1])
	}

	all, err := List(root, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("List(root) returned %d files, want 3", len(all))
	}

	if _, err := List(root, "../"); !errors.Is(err, ErrPathEscapesRoot) {
		t.Errorf("List(..) error = %v, want ErrPathEscapesRoot", err)
	}
}
