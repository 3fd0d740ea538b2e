package gen

import (
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/qobs-build/icupack/internal/shell"
)

// UnixGen drives runConfigureICU and make directly, for Linux and macOS
type UnixGen struct {
	platform string
}

func NewUnixGen(p recipe.Params) *UnixGen {
	platform := "Linux"
	switch {
	case p.OS == recipe.OSMacos:
		platform = "MacOSX"
	case p.IsGCC():
		platform = "Linux/gcc"
	}
	return &UnixGen{platform: platform}
}

func (g *UnixGen) Platform() string              { return g.platform }
func (g *UnixGen) HostArgs() []string            { return nil }
func (g *UnixGen) TranslatePath(p string) string { return p }

func (g *UnixGen) Configure(dir, script string, args []string) (shell.Command, error) {
	return shell.New("bash", append([]string{script}, args...)...).InDir(dir), nil
}

func (g *UnixGen) Make(dir string, args ...string) (shell.Command, error) {
	return shell.New("make", args...).InDir(dir), nil
}
