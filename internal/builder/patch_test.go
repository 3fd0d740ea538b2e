package builder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/qobs-build/icupack/internal/recipe"
)

const escapesrc = `#include <stdio.h>

int main(int argc, const char *argv[]) {
  const char *infile = argv[1];
  const char *outfile = argv[2];
  return convert(infile, outfile);
}
`

const escapesrcPatch = `diff --git a/source/tools/escapesrc/escapesrc.cpp b/source/tools/escapesrc/escapesrc.cpp
index 1111111..2222222 100644
--- a/source/tools/escapesrc/escapesrc.cpp
+++ b/source/tools/escapesrc/escapesrc.cpp
@@ -3,5 +3,8 @@
 int main(int argc, const char *argv[]) {
   const char *infile = argv[1];
   const char *outfile = argv[2];
+  if (argc < 3) {
+    return 1;
+  }
   return convert(infile, outfile);
 }
`

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestApplyPatch(t *testing.T) {
	const target = "source/tools/escapesrc/escapesrc.cpp"
	tests := []struct {
		name     string
		original string
		fuzzy    bool
	}{
		{"exact", escapesrc, false},
		{"shifted", "// header\n// more header\n" + escapesrc, false},
		{"crlf", strings.ReplaceAll(escapesrc, "\n", "\r\n"), false},
		{"drifted context", strings.Replace(escapesrc, "int main(int argc, const char *argv[]) {", "int main(int argc, char *argv[]) {", 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, map[string]string{target: tt.original})

			if err := ApplyPatch(root, escapesrcPatch, 1); err != nil {
				t.Fatalf("ApplyPatch: %v", err)
			}
			got := readFile(t, filepath.Join(root, target))
			if !strings.Contains(got, "  if (argc < 3) {") {
				t.Errorf("patched file lacks the new lines:\n%s", got)
			}
			if strings.Count(got, "return convert(infile, outfile);") != 1 {
				t.Errorf("context duplicated:\n%s", got)
			}
			if crlf := strings.Contains(tt.original, "\r\n"); crlf != strings.Contains(got, "\r\n") {
				t.Error("line endings changed")
			}
		})
	}
}

func TestApplyPatchMismatch(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"source/tools/escapesrc/escapesrc.cpp": "x\n"})
	if err := ApplyPatch(root, escapesrcPatch, 1); !errors.Is(err, ErrPatchMismatch) {
		t.Errorf("err = %v, want ErrPatchMismatch", err)
	}

	if err := ApplyPatch(t.TempDir(), escapesrcPatch, 1); !errors.Is(err, ErrPatchMismatch) {
		t.Errorf("missing file: err = %v, want ErrPatchMismatch", err)
	}
}

func TestApplyPatchNewFile(t *testing.T) {
	root := t.TempDir()
	diff := "--- /dev/null\n+++ b/source/NEWS\n@@ -0,0 +1,2 @@\n+first\n+second\n"
	if err := ApplyPatch(root, diff, 1); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(root, "source", "NEWS")); got != "first\nsecond\n" {
		t.Errorf("NEWS = %q", got)
	}
}

func TestParsePatchErrors(t *testing.T) {
	tests := map[string]string{
		"empty":     "just some text\n",
		"truncated": "--- a/x\n+++ b/x\n@@ -1,3 +1,3 @@\n a\n",
		"header":    "--- a/x\n+++ b/x\n@@ -x +1 @@\n a\n",
		"escape":    "--- a/x\n+++ ../../x\n@@ -1 +1 @@\n-a\n+b\n",
	}
	for name, diff := range tests {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, map[string]string{"x": "a\n"})
			if err := ApplyPatch(root, diff, 1); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestPatchStage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(escapesrcPatch))
	}))
	defer srv.Close()

	b, _ := newTestBuilder(t, linuxParams(t))
	writeSources(t, b)
	writeTree(t, b.rootDir(), map[string]string{"source/tools/escapesrc/escapesrc.cpp": escapesrc})
	b.cfg.Patches = []recipe.PatchSection{
		{URL: srv.URL + "/icu-60.1-msvc-escapesrc.patch", When: `version == "60.1"`, Strip: 1},
		{URL: srv.URL + "/never.patch", When: `os == "Windows" && version == "60.1"`, Strip: 1},
	}

	if err := b.Patch(context.Background()); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("downloaded %d patches, want 1", n)
	}
	if !strings.Contains(readFile(t, filepath.Join(b.sourceDir(), "tools", "escapesrc", "escapesrc.cpp")), "argc < 3") {
		t.Error("ticket patch not applied")
	}

	b.cfg.Patches = []recipe.PatchSection{{URL: srv.URL + "/x.patch", When: `version +`}}
	if err := b.Patch(context.Background()); err == nil {
		t.Error("an invalid condition must fail the stage")
	}
}

func TestSubstitutions(t *testing.T) {
	tests := []struct {
		name     string
		settings []string
		platform string
		want     []string
		gone     []string
	}{
		{
			name:     "msys release MT",
			settings: []string{"os=Windows", "compiler=Visual Studio", "compiler.runtime=MT"},
			platform: "msys",
			want:     []string{"RELEASE_CFLAGS='-Gy -MT'", "RELEASE_CXXFLAGS='-Gy -MT'", "RELEASE_LDFLAGS='-OPT:REF'", "DEBUG_CFLAGS='-Zi -MDd'"},
		},
		{
			name:     "cygwin debug",
			settings: []string{"os=Windows", "compiler=Visual Studio", "build_type=Debug", "compiler.runtime=MTd"},
			platform: "cygwin",
			want:     []string{"DEBUG_CFLAGS='-Zi -MTd -FS'", "DEBUG_CXXFLAGS='-Zi -MTd -FS'", "DEBUG_LDFLAGS='-DEBUG'"},
		},
		{
			name:     "linux gcc",
			settings: []string{"os=Linux", "compiler=gcc"},
			platform: "msys",
			want:     []string{`THE_COMP="the GNU C++"`, "RELEASE_CFLAGS='-O3'"},
			gone:     []string{"CC=gcc; export CC", "CXX=g++; export CXX"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := recipe.ParseParams(tt.settings, []string{"msvc_platform=" + tt.platform}, recipe.DefaultOptions())
			if err != nil {
				t.Fatal(err)
			}
			script := filepath.Join(t.TempDir(), "runConfigureICU")
			if err := os.WriteFile(script, []byte(runConfigureICU), 0755); err != nil {
				t.Fatal(err)
			}
			if err := ApplySubstitutions(script, Substitutions(p)); err != nil {
				t.Fatalf("ApplySubstitutions: %v", err)
			}
			got := readFile(t, script)
			section := got[strings.Index(got, platformName(p)+")"):]
			section = section[:strings.Index(section, ";;")]
			for _, w := range tt.want {
				if !strings.Contains(section, w) {
					t.Errorf("section %s lacks %q:\n%s", platformName(p), w, section)
				}
			}
			for _, g := range tt.gone {
				if strings.Contains(got, g) {
					t.Errorf("%q survived", g)
				}
			}
			if fi, _ := os.Stat(script); fi.Mode().Perm() != 0755 {
				t.Errorf("mode = %v", fi.Mode())
			}
		})
	}
}

func TestSubstitutionScopedToSection(t *testing.T) {
	p, err := recipe.ParseParams([]string{"os=Windows", "compiler=Visual Studio", "compiler.runtime=MT"}, []string{"msvc_platform=msys"}, recipe.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(t.TempDir(), "runConfigureICU")
	if err := os.WriteFile(script, []byte(runConfigureICU), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ApplySubstitutions(script, Substitutions(p)); err != nil {
		t.Fatal(err)
	}
	got := readFile(t, script)
	cygwin := got[strings.Index(got, "Cygwin/MSVC)"):]
	if !strings.Contains(cygwin, "RELEASE_CFLAGS='-Gy -MD'") {
		t.Error("the Cygwin section was rewritten for an MSYS build")
	}
}

func TestSubstitutionMismatch(t *testing.T) {
	tests := []struct {
		name   string
		script string
		sub    Substitution
	}{
		{"no section", runConfigureICU, Substitution{Section: "HP-UX/aCC)", Old: "x"}},
		{"text absent", runConfigureICU, Substitution{Section: "Linux/gcc)", Old: "        CC=clang; export CC\n"}},
		{"text twice", strings.Replace(runConfigureICU, "CC=gcc; export CC\n", "CC=gcc; export CC\n        CC=gcc; export CC\n", 1),
			Substitution{Section: "Linux/gcc)", Old: "        CC=gcc; export CC\n"}},
		{"no lines", runConfigureICU, Substitution{Section: "Linux/gcc)", Line: "DEBUG_C", Old: "-MDd"}},
		{"line without text", runConfigureICU, Substitution{Section: "MSYS/MSVC)", Line: "RELEASE_", Old: "-MD"}},
		{"unterminated", "case x in\n    Linux/gcc)\n        CC=gcc; export CC\n", Substitution{Section: "Linux/gcc)", Old: "CC=gcc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := filepath.Join(t.TempDir(), "runConfigureICU")
			if err := os.WriteFile(script, []byte(tt.script), 0755); err != nil {
				t.Fatal(err)
			}
			err := ApplySubstitutions(script, []Substitution{tt.sub})
			if !errors.Is(err, ErrPatchMismatch) {
				t.Errorf("err = %v, want ErrPatchMismatch", err)
			}
			if got := readFile(t, script); got != tt.script {
				t.Error("script changed although the substitution failed")
			}
		})
	}
}
