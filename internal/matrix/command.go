package matrix

import (
	"fmt"
	"strings"

	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/qobs-build/icupack/internal/shell"
)

// LogName joins the package name, version and every attribute with '-'
func LogName(pkg recipe.PackageSection, c Combination) string {
	parts := append([]string{pkg.Name, pkg.Version}, c.Attributes()...)
	return strings.Join(parts, "-") + ".log"
}

// CreateCommand renders the package manager invocation building one combination
func CreateCommand(cfg *recipe.Config, c Combination) (shell.Command, error) {
	pkg := cfg.Package
	if pkg.Name == "" || pkg.Version == "" || pkg.Channel == "" {
		return shell.Command{}, fmt.Errorf("[package] needs name, version and channel to build %s", LogName(pkg, c))
	}

	args := []string{
		"create", ".", pkg.Reference(), "-k",
		"-s", "os=" + c.OS,
		"-s", "arch=" + c.Arch,
		"-s", "build_type=" + c.BuildType,
		"-s", "compiler=" + c.Compiler,
		"-s", "compiler.version=" + c.CompilerVersion,
	}
	if c.Platform != "" {
		args = append(args, "-o", pkg.Name+":msvc_platform="+c.Platform)
	}
	args = append(args, "-o", pkg.Name+":shared="+c.Link())

	if c.Platform != "" {
		env, ok := cfg.Matrix.Win.PlatformEnv[c.Platform]
		if !ok {
			return shell.Command{}, fmt.Errorf("no environment for platform %q in [matrix.win.platform_env]", c.Platform)
		}
		args = append(args, "-e", env)
	}

	return shell.New(cfg.Matrix.PackageManager, args...), nil
}

// ReportCommand renders the query run once after the sweep
func ReportCommand(cfg *recipe.Config) shell.Command {
	args := []string{"search", cfg.Package.Reference()}
	if cfg.Matrix.Report != "" {
		args = append(args, "--table="+cfg.Matrix.Report)
	}
	return shell.New(cfg.Matrix.PackageManager, args...)
}
