package gitcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw, url, branch string
	}{
		{"https://git.savannah.gnu.org/git/config.git", "https://git.savannah.gnu.org/git/config.git", ""},
		{"https://git.savannah.gnu.org/git/config.git@master", "https://git.savannah.gnu.org/git/config.git", "master"},
		{"git@github.com:gnu/config.git", "git@github.com:gnu/config.git", ""},
	}
	for _, tt := range tests {
		url, branch := ParseURL(tt.raw)
		if url != tt.url || branch != tt.branch {
			t.Errorf("ParseURL(%q) = %q, %q", tt.raw, url, branch)
		}
	}
}

func TestNewIsStable(t *testing.T) {
	base := t.TempDir()
	a := New(base, "https://example.com/config.git", "master")
	b := New(base, "https://example.com/config.git", "master")
	c := New(base, "https://example.com/config.git", "main")
	if a.Path() != b.Path() {
		t.Error("same url and branch must share a checkout")
	}
	if a.Path() == c.Path() {
		t.Error("different branches must not share a checkout")
	}
	if filepath.Dir(a.Path()) != base {
		t.Errorf("checkout %s is outside %s", a.Path(), base)
	}
}

func TestCopyFile(t *testing.T) {
	r := New(t.TempDir(), "https://example.com/config.git", "")
	if err := os.MkdirAll(r.Path(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(r.Path(), "config.sub"), []byte("#! /bin/sh\n# new\n"), 0755); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "config.sub")
	if err := os.WriteFile(dst, []byte("#! /bin/sh\n# old and much longer than the new one\n"), 0444); err != nil {
		t.Fatal(err)
	}
	if err := r.CopyFile("config.sub", dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "#! /bin/sh\n# new\n" {
		t.Errorf("dst = %q", got)
	}

	if err := r.CopyFile("missing", dst); err == nil {
		t.Error("copying a missing file must fail")
	}
}
