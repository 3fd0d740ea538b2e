// Package matrix enumerates build combinations and sweeps them through the
// package manager
package matrix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/qobs-build/icupack/internal/recipe"
)

// Target is the positional argument of the matrix command
type Target string

const (
	TargetWin    Target = "win"
	TargetLinux  Target = "linux"
	TargetMacosx Target = "macosx"
)

var ErrUnknownTarget = errors.New("unknown target")

var Targets = []Target{TargetWin, TargetLinux, TargetMacosx}

func ParseTarget(s string) (Target, error) {
	for _, t := range Targets {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownTarget, s)
}

// OS returns the settings os value the target builds for
func (t Target) OS() string {
	switch t {
	case TargetWin:
		return recipe.OSWindows
	case TargetMacosx:
		return recipe.OSMacos
	default:
		return recipe.OSLinux
	}
}

// Combination is one point of the sweep
type Combination struct {
	OS              string
	Arch            string
	BuildType       string
	Shared          bool
	Compiler        string
	CompilerVersion string
	// Platform is the POSIX layer, Windows only
	Platform string
	// Label names the compiler in log file names, e.g. vs2017 or gcc5
	Label string
}

// Link returns the shared option value as the package manager spells it
func (c Combination) Link() string {
	if c.Shared {
		return "True"
	}
	return "False"
}

// Attributes returns the values joined into the log file name
func (c Combination) Attributes() []string {
	attrs := []string{c.Arch, c.BuildType, c.Link()}
	if c.Platform != "" {
		attrs = append(attrs, c.Platform)
	}
	return append(attrs, c.Label)
}

func (c Combination) env() map[string]any {
	return map[string]any{
		"os":               c.OS,
		"arch":             c.Arch,
		"build_type":       c.BuildType,
		"shared":           c.Shared,
		"link":             c.Link(),
		"compiler":         c.Compiler,
		"compiler_version": c.CompilerVersion,
		"platform":         c.Platform,
		"label":            c.Label,
	}
}

// Enumerate returns every combination of the target's sweep that is not
// excluded, in sweep order: arch, compiler version, build type, link and,
// on Windows, POSIX layer
func Enumerate(cfg *recipe.Config, target Target) ([]Combination, error) {
	m := cfg.Matrix

	var (
		compiler  string
		versions  []string
		platforms = []string{""}
		label     func(version string) (string, error)
	)
	switch target {
	case TargetWin:
		compiler = m.Win.Compiler
		versions = m.Win.Compilers
		platforms = m.Win.Platforms
		label = func(v string) (string, error) {
			l, ok := m.Win.Labels[v]
			if !ok {
				return "", fmt.Errorf("no label for compiler version %q in [matrix.win.labels]", v)
			}
			return l, nil
		}
	case TargetLinux:
		compiler = m.Linux.Compiler
		versions = m.Linux.Compilers
	case TargetMacosx:
		compiler = m.Macosx.Compiler
		versions = m.Macosx.Compilers
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownTarget, target)
	}
	if label == nil {
		label = func(v string) (string, error) {
			return strings.ReplaceAll(compiler, "-", "") + v, nil
		}
	}
	if compiler == "" || len(versions) == 0 {
		return nil, fmt.Errorf("[matrix.%s] needs a compiler and at least one compiler version", target)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("[matrix.%s] needs at least one platform", target)
	}

	excludes, err := compileExcludes(m.Exclude)
	if err != nil {
		return nil, err
	}

	var combos []Combination
	for _, arch := range m.Archs {
		for _, version := range versions {
			lbl, err := label(version)
			if err != nil {
				return nil, err
			}
			for _, buildType := range m.BuildTypes {
				for _, shared := range m.Links {
					for _, platform := range platforms {
						c := Combination{
							OS:              target.OS(),
							Arch:            arch,
							BuildType:       buildType,
							Shared:          shared,
							Compiler:        compiler,
							CompilerVersion: version,
							Platform:        platform,
							Label:           lbl,
						}
						if err := c.validate(); err != nil {
							return nil, err
						}
						excluded, err := isExcluded(excludes, c)
						if err != nil {
							return nil, err
						}
						if !excluded {
							combos = append(combos, c)
						}
					}
				}
			}
		}
	}
	return combos, nil
}

// validate keeps log names injective: a '-' inside a value would make two
// different combinations join to the same name
func (c Combination) validate() error {
	for _, a := range c.Attributes() {
		if a == "" {
			return fmt.Errorf("combination %+v has an empty attribute", c)
		}
		if strings.ContainsAny(a, "-/\\ ") {
			return fmt.Errorf("attribute %q must not contain '-', path separators or spaces", a)
		}
	}
	return nil
}

func compileExcludes(rules []string) ([]*vm.Program, error) {
	progs := make([]*vm.Program, 0, len(rules))
	for _, rule := range rules {
		prog, err := expr.Compile(rule, expr.Env(Combination{}.env()), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile exclude rule %q: %w", rule, err)
		}
		progs = append(progs, prog)
	}
	return progs, nil
}

func isExcluded(progs []*vm.Program, c Combination) (bool, error) {
	env := c.env()
	for _, prog := range progs {
		out, err := expr.Run(prog, env)
		if err != nil {
			return false, fmt.Errorf("failed to run exclude rule: %w", err)
		}
		if out.(bool) {
			return true, nil
		}
	}
	return false, nil
}
