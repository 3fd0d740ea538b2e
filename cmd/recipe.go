// icupack recipe <stage>
package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/qobs-build/icupack/internal/builder"
	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/spf13/cobra"
)

var (
	flagSettings   []string
	flagOptions    []string
	flagWorkDir    string
	flagPackageDir string
	flagBuildJobs  int
	flagArchiveOut string
	flagVerboseID  bool

	flagInfoFormat = NewEnumValue("table", map[string]string{
		"table": "Human readable table",
		"json":  "The package_info.json content",
	})
)

func resolveParams(cfg *recipe.Config) recipe.Params {
	params, err := recipe.ParseParams(flagSettings, flagOptions, cfg.Options)
	if err != nil {
		msg.Fatal("%v", err)
	}
	if flagBuildJobs > 0 {
		params.Jobs = flagBuildJobs
	}
	return params
}

func newBuilder() *builder.Builder {
	cfg := loadConfig()
	b, err := builder.New(cfg, resolveParams(cfg), builder.Folders{Work: flagWorkDir, Package: flagPackageDir})
	if err != nil {
		msg.Fatal("%v", err)
	}
	return b
}

func runStages(stages ...builder.Stage) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		b := newBuilder()
		if err := b.Run(cmd.Context(), stages...); err != nil {
			msg.Fatal("%v", err)
		}
	}
}

func doInfo(cmd *cobra.Command, args []string) {
	b := newBuilder()
	if err := b.Run(cmd.Context(), builder.StageInfo); err != nil {
		msg.Fatal("%v", err)
	}
	info, err := builder.ReadInfo(filepath.Join(b.Folders().Package, builder.InfoFilename))
	if err != nil {
		msg.Fatal("%v", err)
	}
	if flagInfoFormat.Value() == "json" {
		enc := json.NewEncoder(msg.Output())
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			msg.Fatal("%v", err)
		}
		return
	}
	if err := info.RenderTable(msg.Output()); err != nil {
		msg.Fatal("%v", err)
	}
}

func doID(cmd *cobra.Command, args []string) {
	params := resolveParams(loadConfig())
	if flagVerboseID {
		fmt.Print(params.IdentityText())
	}
	fmt.Println(params.Identity())
}

func doArchive(cmd *cobra.Command, args []string) {
	b := newBuilder()
	out := flagArchiveOut
	if out == "" {
		out = filepath.Join(flagWorkDir, builder.ArchiveFilename)
	}
	if err := b.Archive(out); err != nil {
		msg.Fatal("failed to write %s: %v", out, err)
	}
	msg.Info("wrote %s", out)
}

var recipeCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Build and package one configuration",
	Long:  `Build and package one configuration. Settings and options are given as -s key=value and -o key=value, e.g. -s os=Linux -s compiler.version=5 -o icu:shared=False.`,
}

var recipeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage: source, patch, configure, build, check, install, package, info",
	Args:  cobra.NoArgs,
	Run:   runStages(builder.AllStages...),
}

var recipeSourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Download and extract the sources",
	Args:  cobra.NoArgs,
	Run:   runStages(builder.StageSource),
}

var recipeBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Patch, configure, build, test and install",
	Args:  cobra.NoArgs,
	Run:   runStages(builder.BuildStages...),
}

var recipePackageCmd = &cobra.Command{
	Use:   "package",
	Short: "Copy the installed tree into the package folder",
	Args:  cobra.NoArgs,
	Run:   runStages(builder.StagePackage),
}

var recipeInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Write and print the package metadata",
	Args:  cobra.NoArgs,
	Run:   doInfo,
}

var recipeIDCmd = &cobra.Command{
	Use:   "id",
	Short: "Print the package identity of the configuration",
	Args:  cobra.NoArgs,
	Run:   doID,
}

var recipeArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Write the package folder as a tgz",
	Args:  cobra.NoArgs,
	Run:   doArchive,
}

func init() {
	// icupack recipe subcommands
	recipeCmd.AddCommand(recipeRunCmd)
	recipeCmd.AddCommand(recipeSourceCmd)
	recipeCmd.AddCommand(recipeBuildCmd)
	recipeCmd.AddCommand(recipePackageCmd)
	recipeCmd.AddCommand(recipeInfoCmd)
	recipeCmd.AddCommand(recipeIDCmd)
	recipeCmd.AddCommand(recipeArchiveCmd)
	rootCmd.AddCommand(recipeCmd)

	flags := recipeCmd.PersistentFlags()
	flags.StringArrayVarP(&flagSettings, "setting", "s", nil, "Setting as key=value (os, arch, compiler, compiler.version, compiler.runtime, build_type)")
	flags.StringArrayVarP(&flagOptions, "option", "o", nil, "Option as key=value (shared, msvc_platform, data_packaging, with_unit_tests, silent)")
	flags.StringVarP(&flagWorkDir, "workdir", "w", ".", "Folder for the sources, the build tree and the install prefix")
	flags.StringVarP(&flagPackageDir, "package-dir", "p", "package", "Package folder")
	flags.IntVarP(&flagBuildJobs, "jobs", "j", 0, "Parallel make jobs (default: number of CPUs)")

	recipeArchiveCmd.Flags().StringVar(&flagArchiveOut, "out", "", "Archive path (default: <workdir>/"+builder.ArchiveFilename+")")
	recipeInfoCmd.Flags().Var(&flagInfoFormat, "format", "Output format "+flagInfoFormat.HelpString())
	recipeInfoCmd.RegisterFlagCompletionFunc("format", flagInfoFormat.CompletionFunc())
	recipeIDCmd.Flags().BoolVarP(&flagVerboseID, "verbose", "v", false, "Also print the normalized settings and options")
}
