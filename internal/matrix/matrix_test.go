package matrix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/qobs-build/icupack/internal/shell"
)

func defaultConfig(t *testing.T) *recipe.Config {
	t.Helper()
	cfg, err := recipe.Default()
	if err != nil {
		t.Fatalf("recipe.Default: %v", err)
	}
	return cfg
}

type runnerFunc func(ctx context.Context, c shell.Command) error

func (f runnerFunc) Run(ctx context.Context, c shell.Command) error { return f(ctx, c) }

// recorder collects the commands a sweep runs
type recorder struct {
	mu   sync.Mutex
	cmds []shell.Command
	fail func(shell.Command) bool
}

func (r *recorder) newRunner(w io.Writer) shell.Runner {
	return runnerFunc(func(_ context.Context, c shell.Command) error {
		r.mu.Lock()
		r.cmds = append(r.cmds, c)
		r.mu.Unlock()
		fmt.Fprintln(w, c.String())
		if r.fail != nil && r.fail(c) {
			return errors.New("exit status 1")
		}
		return nil
	})
}

func TestParseTarget(t *testing.T) {
	for _, s := range []string{"win", "linux", "macosx"} {
		if _, err := ParseTarget(s); err != nil {
			t.Errorf("ParseTarget(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "windows", "Linux", "osx"} {
		if _, err := ParseTarget(s); !errors.Is(err, ErrUnknownTarget) {
			t.Errorf("ParseTarget(%q) = %v, want ErrUnknownTarget", s, err)
		}
	}
}

func TestPlanWin(t *testing.T) {
	cfg := defaultConfig(t)
	jobs, err := Plan(cfg, TargetWin, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	// arch x compiler x build type x link x platform
	if len(jobs) != 2*2*2*2*2 {
		t.Fatalf("got %d jobs, want 32", len(jobs))
	}

	first := jobs[0]
	if want := "icu-60.1-x86-Release-True-msys-vs2017.log"; first.Log != want {
		t.Errorf("first log = %q, want %q", first.Log, want)
	}
	argv, err := first.Command.Argv()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"conan", "create", ".", "icu/60.1@sigmoidal/testing", "-k",
		"-s", "os=Windows", "-s", "arch=x86", "-s", "build_type=Release",
		"-s", "compiler=Visual Studio", "-s", "compiler.version=15",
		"-o", "icu:msvc_platform=msys", "-o", "icu:shared=True",
		"-e", `MSYS_ROOT=D:\dev\msys64`,
	}
	if !slices.Equal(argv, want) {
		t.Errorf("argv =\n%q\nwant\n%q", argv, want)
	}

	last := jobs[len(jobs)-1]
	if want := "icu-60.1-x86_64-Debug-False-cygwin-vs2015.log"; last.Log != want {
		t.Errorf("last log = %q, want %q", last.Log, want)
	}
	if !strings.Contains(last.Command.String(), "CYGWIN_ROOT=") {
		t.Errorf("cygwin command lacks its root: %s", last.Command)
	}
}

func TestRenderedCommandsAreTotal(t *testing.T) {
	cfg := defaultConfig(t)
	lookPath := func(file string) (string, error) { return "/usr/bin/" + file, nil }
	for _, target := range Targets {
		t.Run(string(target), func(t *testing.T) {
			jobs, err := Plan(cfg, target, lookPath)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if len(jobs) == 0 {
				t.Fatal("no jobs")
			}
			logs := make(map[string]bool)
			for _, job := range jobs {
				line, err := job.Command.BashLine()
				if err != nil {
					t.Fatalf("BashLine: %v", err)
				}
				for _, bad := range []string{"{", "}", "<nil>", "%!"} {
					if strings.Contains(line, bad) || strings.Contains(job.Log, bad) {
						t.Errorf("unresolved placeholder %q in %q / %q", bad, line, job.Log)
					}
				}
				for _, v := range []string{job.Arch, job.BuildType, job.CompilerVersion, "shared=" + job.Link()} {
					if strings.Count(line, v) == 0 {
						t.Errorf("%q missing from %q", v, line)
					}
				}
				if logs[job.Log] {
					t.Errorf("duplicate log name %q", job.Log)
				}
				logs[job.Log] = true
			}
		})
	}
}

func TestLinuxSweepWithoutGCC6(t *testing.T) {
	cfg := defaultConfig(t)
	lookPath := func(file string) (string, error) {
		if strings.HasSuffix(file, "-6") {
			return "", fmt.Errorf("exec: %q: executable file not found in $PATH", file)
		}
		return "/usr/bin/" + file, nil
	}

	jobs, err := Plan(cfg, TargetLinux, lookPath)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(jobs) != 16 {
		t.Fatalf("got %d jobs, want 16", len(jobs))
	}

	rec := &recorder{}
	s := &Sweeper{NewRunner: rec.newRunner, LogDir: t.TempDir()}
	results := s.Run(context.Background(), jobs)

	if len(rec.cmds) != 8 {
		t.Fatalf("ran %d commands, want the 8 gcc-5 ones", len(rec.cmds))
	}
	for _, c := range rec.cmds {
		if c.Env["CC"] != "/usr/bin/gcc-5" || c.Env["CXX"] != "/usr/bin/g++-5" {
			t.Errorf("command env = %v", c.Env)
		}
		if !slices.Contains(c.Args, "compiler.version=5") {
			t.Errorf("non gcc-5 command ran: %s", c)
		}
	}
	for _, r := range results {
		want := StatusOK
		if r.CompilerVersion == "6" {
			want = StatusSkipped
		}
		if r.Status != want {
			t.Errorf("%s: status %s, want %s", r.Log, r.Status, want)
		}
	}
	if os.Getenv("CC") == "/usr/bin/gcc-5" {
		t.Error("CC leaked into the process environment")
	}
}

func TestSweepRecordsFailuresAndContinues(t *testing.T) {
	cfg := defaultConfig(t)
	jobs, err := Plan(cfg, TargetMacosx, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	rec := &recorder{fail: func(c shell.Command) bool {
		return slices.Contains(c.Args, "build_type=Debug")
	}}
	dir := t.TempDir()
	s := &Sweeper{NewRunner: rec.newRunner, LogDir: dir, Jobs: 3}
	results := s.Run(context.Background(), jobs)

	if len(rec.cmds) != len(jobs) {
		t.Fatalf("ran %d of %d jobs", len(rec.cmds), len(jobs))
	}
	if got, want := Failed(results), len(jobs)/2; got != want {
		t.Errorf("Failed = %d, want %d", got, want)
	}
	for i, r := range results {
		if r.Log != jobs[i].Log {
			t.Fatalf("results out of order at %d", i)
		}
		data, err := os.ReadFile(filepath.Join(dir, r.Log))
		if err != nil {
			t.Fatalf("log missing: %v", err)
		}
		if !strings.Contains(string(data), "conan create") {
			t.Errorf("log %s = %q", r.Log, data)
		}
	}
}

func TestSweepTeeKeepsLinesWhole(t *testing.T) {
	var status bytes.Buffer
	msg.SetOutput(&status)
	t.Cleanup(func() { msg.SetOutput(os.Stdout) })

	cfg := defaultConfig(t)
	jobs, err := Plan(cfg, TargetWin, nil)
	if err != nil {
		t.Fatal(err)
	}
	// each job writes its name in small pieces, ending without a newline
	newRunner := func(w io.Writer) shell.Runner {
		return runnerFunc(func(_ context.Context, c shell.Command) error {
			name := c.Args[2]
			for range 3 {
				for _, piece := range []string{name, " ", "building", "\n"} {
					io.WriteString(w, piece)
				}
			}
			io.WriteString(w, name+" done")
			return nil
		})
	}

	var tee bytes.Buffer
	s := &Sweeper{NewRunner: newRunner, LogDir: t.TempDir(), Jobs: 8, Tee: &tee}
	results := s.Run(context.Background(), jobs)
	if got := Failed(results); got != 0 {
		t.Fatalf("Failed = %d", got)
	}

	lines := strings.Split(strings.TrimSuffix(tee.String(), "\n"), "\n")
	if len(lines) != 4*len(jobs) {
		t.Fatalf("tee has %d lines, want %d", len(lines), 4*len(jobs))
	}
	ref := "    " + cfg.Package.Reference()
	for _, line := range lines {
		if line != ref+" building" && line != ref+" done" {
			t.Errorf("interleaved tee line %q", line)
		}
	}
	if got := strings.Count(status.String(), "Building"); got != len(jobs) {
		t.Errorf("status output has %d Building lines, want %d", got, len(jobs))
	}
}

func TestSweepDryRun(t *testing.T) {
	cfg := defaultConfig(t)
	jobs, err := Plan(cfg, TargetWin, nil)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	dir := t.TempDir()
	results := (&Sweeper{NewRunner: rec.newRunner, LogDir: dir, DryRun: true}).Run(context.Background(), jobs)
	if len(rec.cmds) != 0 {
		t.Errorf("dry run executed %d commands", len(rec.cmds))
	}
	for _, r := range results {
		if r.Status != StatusPlanned {
			t.Errorf("%s: %s", r.Log, r.Status)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("dry run created %d files", len(entries))
	}
}

func TestExcludeRules(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Matrix.Exclude = []string{
		`arch == "x86" && compiler_version == "14"`,
		`platform == "cygwin" && !shared`,
	}
	combos, err := Enumerate(cfg, TargetWin)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	for _, c := range combos {
		if c.Arch == "x86" && c.CompilerVersion == "14" {
			t.Errorf("excluded combination present: %+v", c)
		}
		if c.Platform == "cygwin" && !c.Shared {
			t.Errorf("excluded combination present: %+v", c)
		}
	}
	// 32 total, 8 x86/vs2015, then static cygwin from the remaining 24: 6
	if len(combos) != 32-8-6 {
		t.Errorf("got %d combinations, want 18", len(combos))
	}

	cfg.Matrix.Exclude = []string{`arch + 1`}
	if _, err := Enumerate(cfg, TargetWin); err == nil {
		t.Error("non-boolean rule must fail to compile")
	}
}

func TestEnumerateRejectsAmbiguousNames(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Matrix.Archs = []string{"x86-64"}
	if _, err := Enumerate(cfg, TargetLinux); err == nil {
		t.Error("an attribute containing '-' must be rejected")
	}

	cfg = defaultConfig(t)
	cfg.Matrix.Win.Labels = map[string]string{"15": "vs2017"}
	if _, err := Enumerate(cfg, TargetWin); err == nil {
		t.Error("a compiler version without a label must be rejected")
	}
}

func TestPlanRejectsSharedLogNames(t *testing.T) {
	tests := map[string]func(cfg *recipe.Config){
		"same label": func(cfg *recipe.Config) {
			cfg.Matrix.Win.Labels = map[string]string{"15": "vs", "14": "vs"}
		},
		"repeated arch": func(cfg *recipe.Config) {
			cfg.Matrix.Archs = []string{"x86", "x86_64", "x86"}
		},
		"repeated link": func(cfg *recipe.Config) {
			cfg.Matrix.Links = []bool{true, true}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig(t)
			mutate(cfg)
			if _, err := Plan(cfg, TargetWin, nil); !errors.Is(err, ErrDuplicateLog) {
				t.Errorf("Plan err = %v, want ErrDuplicateLog", err)
			}
		})
	}

	lookPath := func(name string) (string, error) { return "/usr/bin/" + name, nil }
	cfg := defaultConfig(t)
	cfg.Matrix.Linux.Compilers = []string{"5", "6", "5"}
	if _, err := Plan(cfg, TargetLinux, lookPath); !errors.Is(err, ErrDuplicateLog) {
		t.Errorf("Plan err = %v, want ErrDuplicateLog", err)
	}
}

func TestMacosLabel(t *testing.T) {
	cfg := defaultConfig(t)
	combos, err := Enumerate(cfg, TargetMacosx)
	if err != nil {
		t.Fatal(err)
	}
	if got := LogName(cfg.Package, combos[0]); got != "icu-60.1-x86-Release-True-appleclang9.0.log" {
		t.Errorf("LogName = %q", got)
	}
}

func TestReportCommand(t *testing.T) {
	cfg := defaultConfig(t)
	got, err := ReportCommand(cfg).BashLine()
	if err != nil {
		t.Fatal(err)
	}
	if want := "conan search icu/60.1@sigmoidal/testing --table=file.html"; got != want {
		t.Errorf("ReportCommand = %q, want %q", got, want)
	}
}
