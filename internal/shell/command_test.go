package shell

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

func TestMergeEnv(t *testing.T) {
	base := []string{"HOME=/root", "PATH=/usr/bin", "LANG=C"}
	got := MergeEnv(base, map[string]string{"PATH": "/opt/bin:/usr/bin", "CC": "gcc-5"})
	want := []string{"HOME=/root", "PATH=/opt/bin:/usr/bin", "LANG=C", "CC=gcc-5"}
	if !slices.Equal(got, want) {
		t.Errorf("MergeEnv = %q, want %q", got, want)
	}
	if base[1] != "PATH=/usr/bin" {
		t.Error("MergeEnv modified its input")
	}
}

func TestParseEnv(t *testing.T) {
	out := "**********************************************************************\r\n" +
		"** Visual Studio 2017 Developer Command Prompt v15.0\r\n" +
		"=C:=C:\\work\r\n" +
		"INCLUDE=C:\\VC\\include;C:\\SDK\\include\r\n" +
		"Path=C:\\VC\\bin;C:\\Windows\r\n"
	env := ParseEnv(out)
	if env["INCLUDE"] != `C:\VC\include;C:\SDK\include` {
		t.Errorf("INCLUDE = %q", env["INCLUDE"])
	}
	if env["Path"] != `C:\VC\bin;C:\Windows` {
		t.Errorf("Path = %q", env["Path"])
	}
	if len(env) != 2 {
		t.Errorf("unexpected entries: %v", env)
	}
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found")
	}

	var stdout bytes.Buffer
	r := ExecRunner{Stdout: &stdout, Quiet: true}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	c := New(sh, "-c", `printf "%s " "$ICUPACK_TEST"; ls`).InDir(dir).WithEnv("ICUPACK_TEST", "scoped")
	if err := r.Run(context.Background(), c); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "scoped marker" {
		t.Errorf("output = %q", got)
	}
	if _, ok := os.LookupEnv("ICUPACK_TEST"); ok {
		t.Error("command environment leaked into the process")
	}

	if err := r.Run(context.Background(), New(sh, "-c", "exit 3")); err == nil {
		t.Error("non-zero exit must be an error")
	}
}
