// icupack init [dir]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/qobs-build/icupack/internal/matrix"
	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/spf13/cobra"
)

func writefile(content []byte, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, content, 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	} else {
		msg.Warn("%s already exists, leaving it alone", filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

// initIn writes the built-in recipe description into dir so it can be edited
func initIn(dir string) {
	mkdir(dir)
	writefile(recipe.DefaultTOML(), dir, recipe.DefaultFilename)

	// .gitignore
	writefile([]byte("/package/\n/output/\n/icu/\n*.log\n"+matrix.SummaryFilename+"\n"), dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to build one configuration, or %s to sweep a whole target.\n",
		color.HiCyanString(programName+" recipe run"), color.HiCyanString(programName+" matrix linux"))
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write an editable " + recipe.DefaultFilename + " with the built-in ICU recipe",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		initIn(dir)
	},
}

func init() {
	// icupack init subcommand
	rootCmd.AddCommand(initCmd)
}
