package builder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/qobs-build/icupack/internal/builder/gen"
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/qobs-build/icupack/internal/shell"
)

// layerRoot locates the installation of the POSIX layer. The variable named
// by root_env wins; otherwise the first existing default root is used.
func (b *Builder) layerRoot(layer shell.Layer) (string, recipe.PlatformSection, error) {
	platform, ok := b.cfg.Platform[string(layer)]
	if !ok {
		return "", platform, fmt.Errorf("%w: no [platform.%s] section", ErrEnvironmentMissing, layer)
	}

	if platform.RootEnv != "" {
		if root := b.Getenv(platform.RootEnv); root != "" {
			if !isDir(root) {
				return "", platform, fmt.Errorf("%w: %s=%s is not a directory", ErrEnvironmentMissing, platform.RootEnv, root)
			}
			return root, platform, nil
		}
	}
	for _, root := range platform.DefaultRoots {
		if isDir(root) {
			return root, platform, nil
		}
	}
	return "", platform, fmt.Errorf("%w: %s is not set and no %s installation was found", ErrEnvironmentMissing, platform.RootEnv, layer)
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

// msvcEnv captures the environment vcvarsall.bat sets up for the target arch
func (b *Builder) msvcEnv(ctx context.Context) (map[string]string, error) {
	vcvarsall, err := gen.FindVcvarsall(ctx, b.params.CompilerVersion, b.Getenv, b.Capture)
	if errors.Is(err, gen.ErrVcvarsNotFound) {
		return nil, fmt.Errorf("%w: Visual Studio %s: %w", ErrEnvironmentMissing, b.params.CompilerVersion, err)
	}
	if err != nil {
		return nil, err
	}
	return gen.CaptureVcvars(ctx, b.Capture, vcvarsall, gen.VcvarsArch(b.params.Arch), b.TempDir)
}
