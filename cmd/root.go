// icupack matrix <target>, icupack recipe <stage>
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "icupack",
	Short: "Build and package ICU across compilers and platforms",
	Long: `icupack drives the ICU build. "icupack matrix" sweeps every configuration of
a target through the package manager; "icupack recipe" builds and packages
one configuration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			msg.DisableColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Recipe description (default: ./"+recipe.DefaultFilename+" or the built-in ICU recipe)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
}

// loadConfig reads the recipe description or exits
func loadConfig() *recipe.Config {
	cfg, err := recipe.Load(flagConfig)
	if err != nil {
		msg.Fatal("failed to load recipe description: %v", err)
	}
	return cfg
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
