package builder

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/icupack/internal/builder/gen"
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/qobs-build/icupack/internal/shell"
)

// ConfigureArgs returns the runConfigureICU arguments for p. outDir is the
// native install prefix; g translates it for the build tools.
func ConfigureArgs(p recipe.Params, g gen.Generator, outDir string) []string {
	var args []string
	if p.IsDebug() {
		args = append(args, "--enable-debug", "--disable-release")
	}
	args = append(args, g.Platform())
	args = append(args, g.HostArgs()...)
	args = append(args,
		"--with-library-bits="+p.Bits(),
		"--prefix="+g.TranslatePath(outDir),
	)
	if p.Shared {
		args = append(args, "--enable-shared", "--disable-static")
	} else {
		args = append(args, "--enable-static", "--disable-shared")
	}
	return append(args,
		"--with-data-packaging="+p.DataPackaging,
		"--disable-layout",
		"--disable-layoutex",
	)
}

// fixInstallNames sets the install name of every versioned ICU dylib to its
// file name so the libraries can be relocated
func (b *Builder) fixInstallNames(ctx context.Context) error {
	libDir := filepath.Join(b.outputDir(), "lib")
	pattern := "*icu*." + b.cfg.Package.Version + ".dylib"

	var libs []string
	err := doublestar.GlobWalk(os.DirFS(libDir), pattern, func(p string, d fs.DirEntry) error {
		libs = append(libs, p)
		return nil
	}, doublestar.WithFilesOnly(), doublestar.WithNoFollow())
	if err != nil {
		return err
	}

	for _, lib := range libs {
		c := shell.New("install_name_tool", "-id", path.Base(lib), filepath.Join(libDir, filepath.FromSlash(lib))).InDir(libDir)
		if err := b.Runner.Run(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
