// Package shell holds the typed command representation used by both drivers
// and renders it for the shell that ends up executing it.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"

	"github.com/qobs-build/icupack/internal/msg"
)

var errEmptyProgram = errors.New("command has no program")

// Command is a program, its arguments and the environment overrides that
// apply to this invocation only
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string
}

// New returns a command running path with args
func New(path string, args ...string) Command {
	return Command{Path: path, Args: args}
}

// WithEnv returns a copy of c with key=value added to its environment
func (c Command) WithEnv(key, value string) Command {
	env := maps.Clone(c.Env)
	if env == nil {
		env = make(map[string]string, 1)
	}
	env[key] = value
	c.Env = env
	return c
}

// InDir returns a copy of c that runs in dir
func (c Command) InDir(dir string) Command {
	c.Dir = dir
	return c
}

// Argv returns the native argument vector
func (c Command) Argv() ([]string, error) {
	if c.Path == "" {
		return nil, errEmptyProgram
	}
	return append([]string{c.Path}, c.Args...), nil
}

// String renders the command for display: environment overrides in sorted
// order followed by the bash form of the command line
func (c Command) String() string {
	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(c.Env)) {
		if k == "PATH" {
			continue
		}
		sb.WriteString(k + "=" + c.Env[k] + " ")
	}
	line, err := c.BashLine()
	if err != nil {
		line = "<" + err.Error() + ">"
	}
	sb.WriteString(line)
	return sb.String()
}

// Runner executes commands
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as blocking subprocesses
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Quiet suppresses the "Running" line
	Quiet bool
}

func (r ExecRunner) Run(ctx context.Context, c Command) error {
	argv, err := c.Argv()
	if err != nil {
		return err
	}
	if !r.Quiet {
		msg.Step("Running", "%s", c)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), c.Env)
	}
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// MergeEnv applies overrides to a KEY=VALUE list. On Windows variable names
// are matched case-insensitively, so PATH replaces Path.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := slices.Clone(base)
	idx := make(map[string]int, len(out))
	for i, kv := range out {
		if k, _, ok := strings.Cut(kv, "="); ok {
			idx[envKey(k)] = i
		}
	}
	for _, k := range slices.Sorted(maps.Keys(overrides)) {
		if i, ok := idx[envKey(k)]; ok {
			out[i] = k + "=" + overrides[k]
		} else {
			out = append(out, k+"="+overrides[k])
		}
	}
	return out
}

func envKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}

// ParseEnv parses the output of `set` or `env` into a map
func ParseEnv(out string) map[string]string {
	env := make(map[string]string)
	for line := range strings.Lines(out) {
		line = strings.TrimRight(line, "\r\n")
		k, v, ok := strings.Cut(line, "=")
		// skip banner lines and the =C:=C:\ style entries cmd.exe keeps
		if !ok || k == "" || strings.ContainsAny(k, " \t") {
			continue
		}
		env[k] = v
	}
	return env
}

// JoinPathList joins entries with the OS path list separator, skipping empty ones
func JoinPathList(entries ...string) string {
	return strings.Join(slices.DeleteFunc(slices.Clone(entries), func(s string) bool { return s == "" }), string(os.PathListSeparator))
}
