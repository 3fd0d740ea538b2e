// icupack matrix <win|linux|macosx>
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/qobs-build/icupack/internal/matrix"
	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/shell"
	"github.com/spf13/cobra"
)

var (
	flagDryRun         bool
	flagSweepJobs      int
	flagTee            bool
	flagIgnoreFailures bool
	flagLogDir         string
)

func matrixUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s matrix [win | linux | macosx]\n", getProgramName())
	os.Exit(1)
}

func doMatrix(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		matrixUsage()
	}
	target, err := matrix.ParseTarget(args[0])
	if err != nil {
		matrixUsage()
	}

	cfg := loadConfig()
	jobs, err := matrix.Plan(cfg, target, exec.LookPath)
	if err != nil {
		msg.Fatal("failed to plan the %s sweep: %v", target, err)
	}
	if err := os.MkdirAll(flagLogDir, 0755); err != nil {
		msg.Fatal("create log directory: %v", err)
	}

	sweeper := &matrix.Sweeper{
		LogDir: flagLogDir,
		Jobs:   flagSweepJobs,
		DryRun: flagDryRun,
	}
	if flagTee {
		sweeper.Tee = msg.Output()
	}

	started := time.Now()
	results := sweeper.Run(cmd.Context(), jobs)

	report := matrix.ReportCommand(cfg)
	if flagDryRun {
		msg.Step("Would run", "%s", report)
	} else if err := (shell.ExecRunner{}).Run(cmd.Context(), report); err != nil {
		msg.Error("report query failed: %v", err)
	}

	summary := matrix.NewSummary(target, cfg.Package.Reference(), started, results)
	summaryPath := filepath.Join(flagLogDir, matrix.SummaryFilename)
	if err := summary.Write(summaryPath); err != nil {
		msg.Error("failed to write %s: %v", summaryPath, err)
	}
	if err := summary.RenderTable(msg.Output()); err != nil {
		msg.Error("%v", err)
	}

	if failed := matrix.Failed(results); failed > 0 {
		if flagIgnoreFailures {
			msg.Warn("%d of %d combinations failed", failed, len(results))
			return
		}
		msg.Fatal("%d of %d combinations failed, see %s", failed, len(results), summaryPath)
	}
}

var matrixCmd = &cobra.Command{
	Use:       "matrix [win | linux | macosx]",
	Short:     "Build every configuration of a target through the package manager",
	Long:      `Build every configuration of a target through the package manager. Each combination writes its output to its own log file; a failing combination does not stop the sweep.`,
	Args:      cobra.ArbitraryArgs,
	ValidArgs: []string{string(matrix.TargetWin), string(matrix.TargetLinux), string(matrix.TargetMacosx)},
	Run:       doMatrix,
}

func init() {
	// icupack matrix subcommand
	rootCmd.AddCommand(matrixCmd)
	matrixCmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "Print the commands without running them")
	matrixCmd.Flags().IntVarP(&flagSweepJobs, "jobs", "j", 1, "Number of combinations to build at once")
	matrixCmd.Flags().BoolVar(&flagTee, "tee", false, "Also print the output of every combination")
	matrixCmd.Flags().BoolVar(&flagIgnoreFailures, "ignore-failures", false, "Exit successfully even when combinations failed")
	matrixCmd.Flags().StringVar(&flagLogDir, "log-dir", ".", "Directory for the log files and the sweep summary")
}
