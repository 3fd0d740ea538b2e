package matrix

import (
	"errors"
	"fmt"

	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/qobs-build/icupack/internal/shell"
)

// Job is a combination with its rendered command. Skip is set when the
// combination cannot be built on this host.
type Job struct {
	Combination
	Command shell.Command
	Log     string
	Skip    error
}

// ErrDuplicateLog is returned when two combinations would share a log file,
// e.g. two compiler versions with the same label
var ErrDuplicateLog = errors.New("combinations share a log file name")

// Plan enumerates the target's combinations and renders one command per
// combination. On Linux the versioned compilers are probed through lookPath
// (exec.LookPath when nil) and passed to the command as CC and CXX.
func Plan(cfg *recipe.Config, target Target, lookPath LookPathFunc) ([]Job, error) {
	combos, err := Enumerate(cfg, target)
	if err != nil {
		return nil, err
	}

	var probes map[pairing]probeResult
	if target == TargetLinux {
		probes = probePairings(cfg.Matrix.Linux, combos, lookPath)
	}

	jobs := make([]Job, 0, len(combos))
	seen := make(map[string]Combination, len(combos))
	for _, c := range combos {
		log := LogName(cfg.Package, c)
		if prev, dup := seen[log]; dup {
			return nil, fmt.Errorf("%w: %s (%s %s and %s %s)", ErrDuplicateLog, log,
				prev.Compiler, prev.CompilerVersion, c.Compiler, c.CompilerVersion)
		}
		seen[log] = c

		cmd, err := CreateCommand(cfg, c)
		if err != nil {
			return nil, err
		}
		job := Job{Combination: c, Log: log}
		if probes != nil {
			res := probes[pairing{c.Arch, c.CompilerVersion}]
			if res.err != nil {
				job.Skip = res.err
			} else {
				if res.tc.CC != "" {
					cmd = cmd.WithEnv("CC", res.tc.CC)
				}
				if res.tc.CXX != "" {
					cmd = cmd.WithEnv("CXX", res.tc.CXX)
				}
			}
		}
		job.Command = cmd
		jobs = append(jobs, job)
	}
	return jobs, nil
}
