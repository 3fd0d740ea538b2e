package matrix

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/recipe"
)

// LookPathFunc resolves an executable name to a path
type LookPathFunc func(file string) (string, error)

// Toolchain is a resolved C/C++ compiler pair
type Toolchain struct {
	CC, CXX string
}

// findToolchain resolves the versioned compiler executables of the pairing,
// e.g. gcc-5 and g++-5
func findToolchain(m recipe.UnixMatrix, version string, lookPath LookPathFunc) (Toolchain, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var tc Toolchain
	for _, probe := range []struct {
		pattern string
		dst     *string
	}{
		{m.CC, &tc.CC},
		{m.CXX, &tc.CXX},
	} {
		if probe.pattern == "" {
			continue
		}
		name := strings.ReplaceAll(probe.pattern, "{version}", version)
		path, err := lookPath(name)
		if err != nil {
			return Toolchain{}, fmt.Errorf("%s not found: %w", name, err)
		}
		*probe.dst = path
	}
	return tc, nil
}

// probePairings resolves the toolchain of every arch/compiler pairing before
// it is built. Missing toolchains are logged and returned as the skip reason
// of that pairing; the rest of the sweep goes on.
func probePairings(m recipe.UnixMatrix, combos []Combination, lookPath LookPathFunc) map[pairing]probeResult {
	results := make(map[pairing]probeResult)
	for _, c := range combos {
		key := pairing{c.Arch, c.CompilerVersion}
		if _, done := results[key]; done {
			continue
		}
		tc, err := findToolchain(m, c.CompilerVersion, lookPath)
		if err != nil {
			msg.Error("skipping %s %s on %s: %v", c.Compiler, c.CompilerVersion, c.Arch, err)
		}
		results[key] = probeResult{tc, err}
	}
	return results
}

type pairing struct {
	arch, version string
}

type probeResult struct {
	tc  Toolchain
	err error
}
